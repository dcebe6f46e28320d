package models

import "time"

type QRStatus string

const (
	QRActive    QRStatus = "Active"
	QRPending   QRStatus = "Pending"
	QRCompleted QRStatus = "Completed"
	QRFailed    QRStatus = "Failed"
	QRCancelled QRStatus = "Cancelled"
)

type TransactionStatus string

const (
	TxPending   TransactionStatus = "Pending"
	TxSuccess   TransactionStatus = "Success"
	TxFailed    TransactionStatus = "Failed"
	TxCancelled TransactionStatus = "Cancelled"
)

// TransactionTypeQRPayment is the only transaction type this service creates.
const TransactionTypeQRPayment = "QR Payment"

type Merchant struct {
	ID        int64
	Name      string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Card struct {
	ID           int64
	CardholderID int64
	Number       string
	Expiry       string
	PIN          string
	Balance      int64 // minor units (cents)
	Status       string
	UpdatedAt    time.Time
}

type Transaction struct {
	ID          string
	CardID      int64
	MerchantID  int64
	Amount      int64 // minor units, fixed at creation from the QR code
	Type        string
	Status      TransactionStatus
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// QRCode is a time-bounded payment request. TransactionID and CardID are set
// when a submission binds a card to the request; they stay set through the
// terminal states.
type QRCode struct {
	ID            string
	MerchantID    int64
	Amount        int64 // minor units
	Description   string
	Status        QRStatus
	CreatedAt     time.Time
	ExpiryTime    time.Time
	CompletedAt   *time.Time
	TransactionID *string
	CardID        *int64
}

// Expired reports whether the request window has closed. Expiry is enforced
// lazily: storage keeps the code Active until someone tries to use it.
func (q *QRCode) Expired(now time.Time) bool {
	return now.After(q.ExpiryTime)
}

type QRCodeView struct {
	QRCodeID     string    `json:"qr_code_id"`
	MerchantID   int64     `json:"merchant_id"`
	MerchantName string    `json:"merchant_name"`
	Amount       string    `json:"amount"`
	Description  string    `json:"description,omitempty"`
	Status       QRStatus  `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiryTime   time.Time `json:"expiry_time"`
	QRCodeData   string    `json:"qr_code_data"`
}

type PendingPaymentView struct {
	TransactionID string    `json:"transaction_id"`
	Status        string    `json:"status"`
	Message       string    `json:"message"`
	Amount        string    `json:"amount"`
	MerchantName  string    `json:"merchant_name"`
	ProcessedAt   time.Time `json:"processed_at"`
}

type TransactionView struct {
	TransactionID string            `json:"transaction_id"`
	CardID        int64             `json:"card_id"`
	MerchantID    int64             `json:"merchant_id"`
	MerchantName  string            `json:"merchant_name"`
	Amount        string            `json:"amount"`
	Type          string            `json:"transaction_type"`
	Status        TransactionStatus `json:"status"`
	Description   string            `json:"description,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

type QRStatusView struct {
	QRCodeID    string           `json:"qr_code_id"`
	Status      QRStatus         `json:"status"`
	Amount      string           `json:"amount"`
	Description string           `json:"description,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	ExpiryTime  time.Time        `json:"expiry_time"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Transaction *TransactionView `json:"transaction,omitempty"`
}

type ConfirmationView struct {
	TransactionID string    `json:"transaction_id"`
	Status        string    `json:"status"`
	Message       string    `json:"message"`
	Amount        string    `json:"amount"`
	MerchantName  string    `json:"merchant_name"`
	ConfirmedAt   time.Time `json:"confirmed_at"`
	ErrorCode     string    `json:"error_code,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
}
