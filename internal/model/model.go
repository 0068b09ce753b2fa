package model

import "time"

// Проводки по счету

type BookingType string

const (
	BookingTypePurchase        BookingType = "purchase"
	BookingTypeDeposit         BookingType = "deposit"
	BookingTypeWithdraw        BookingType = "withdraw"
	BookingTypeTransferOut     BookingType = "transfer-out"
	BookingTypeTransferIn      BookingType = "transfer-in"
	BookingTypeTallyCarryOver  BookingType = "tally-carry-over"
	BookingTypeStock           BookingType = "stock"
	BookingTypeInitialize      BookingType = "initialize"
	BookingTypeArchive         BookingType = "archive"
	BookingTypeReverse         BookingType = "reverse"
	BookingTypeAdminAdjustment BookingType = "admin-adjustment"
)

// Booking неизменяема после записи. Amount в сантимах, плюс - зачисление.
type Booking struct {
	ID               string      `json:"id"`
	Account          string      `json:"account"`
	ItemID           string      `json:"item_id,omitempty"`
	Time             time.Time   `json:"time"`
	Amount           int64       `json:"amount"`
	Name             string      `json:"name"`
	Description      string      `json:"description,omitempty"`
	Type             BookingType `json:"type"`
	RelatedBookingID string      `json:"related_booking_id,omitempty"`
	Sender           string      `json:"sender,omitempty"`
	Recipient        string      `json:"recipient,omitempty"`
	Admin            bool        `json:"admin,omitempty"`
}

// Receipt - результат проводки вместе с балансом, прочитанным под той же блокировкой.
type Receipt struct {
	Booking Booking `json:"booking"`
	Balance int64   `json:"balance"`
}

// Движения склада

type MovementType string

const (
	MovementTypeConsumption MovementType = "consumption"
	MovementTypeRestock     MovementType = "restock"
	MovementTypeReverse     MovementType = "reverse"
)

type Movement struct {
	ID        string       `json:"id"`
	ItemID    string       `json:"item_id"`
	BookingID string       `json:"booking_id"`
	Type      MovementType `json:"type"`
	Change    int64        `json:"change"`
	Time      time.Time    `json:"time"`
}

type StockInfo struct {
	ItemID      string    `json:"item_id"`
	Quantity    int64     `json:"quantity"`
	Unit        string    `json:"unit"`
	LastUpdated time.Time `json:"last_updated"`
}

// Справочники

type User struct {
	ID          string `json:"id" yaml:"id"`
	Username    string `json:"username" yaml:"username"`
	DisplayName string `json:"display_name" yaml:"display_name"`
}

type Item struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Price       int64  `json:"price" yaml:"price"`
	Ration      int64  `json:"ration" yaml:"ration"`
	Buyable     bool   `json:"buyable" yaml:"buyable"`
	Stockable   bool   `json:"stockable" yaml:"stockable"`
	Unit        string `json:"unit" yaml:"unit"`
}

// DanglingTransfer - перевод, у которого списание отправителя записано,
// а зачисление получателю нет. Требует ручной сверки.
type DanglingTransfer struct {
	SourceBookingID string    `json:"source_booking_id"`
	TargetBookingID string    `json:"target_booking_id"`
	Sender          string    `json:"sender"`
	Recipient       string    `json:"recipient"`
	Amount          int64     `json:"amount"`
	Remark          string    `json:"remark"`
	Cause           string    `json:"cause"`
	DetectedAt      time.Time `json:"detected_at"`
}
