package repository

// Factory describes access to different domain repositories.
type Factory interface {
	Drafts() DraftRepository
	Lottery() LotteryRepository
	Inventory() PackInventory
}
