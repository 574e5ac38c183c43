package main

// DrugInfo describes the drug a batch contains. Immutable once issued.
type DrugInfo struct {
	Name               string `json:"name"`
	ActiveIngredient   string `json:"activeIngredient"`
	Dosage             string `json:"dosage"`
	ManufacturerName   string `json:"manufacturerName"`
	RegistrationNumber string `json:"registrationNumber"`
}

// Batch represents a manufactured lot of a drug product. CurrentOwner is
// changed only by ReceiveShipment; there is no direct transfer path.
type Batch struct {
	BatchID             uint64   `json:"batchId"`
	DrugInfo            DrugInfo `json:"drugInfo"`
	Quantity            uint64   `json:"quantity"`
	ManufactureDate     string   `json:"manufactureDate"` // RFC 3339
	ExpiryDate          string   `json:"expiryDate"`      // RFC 3339
	QRCode              string   `json:"qrCode"`
	IssuingManufacturer string   `json:"issuingManufacturer"`
	CurrentOwner        string   `json:"currentOwner"`
	IsActive            bool     `json:"isActive"`
}

// Shipment records an intent to transfer a batch from its current owner to
// a named recipient. It completes at most once, on receipt.
type Shipment struct {
	ShipmentID     uint64 `json:"shipmentId"`
	BatchID        uint64 `json:"batchId"`
	From           string `json:"from"`
	To             string `json:"to"`
	Quantity       uint64 `json:"quantity"`
	TrackingNumber string `json:"trackingNumber"`
	Received       bool   `json:"received"`
	ReceivedAt     string `json:"receivedAt,omitempty"` // RFC 3339, set on receipt
}

// VerificationResult is the answer to a point-of-sale QR lookup.
type VerificationResult struct {
	IsValid bool   `json:"isValid"`
	Batch   *Batch `json:"batch,omitempty"`
	Message string `json:"message"`
}

// BatchIssuedEvent is emitted after a successful IssueBatch.
type BatchIssuedEvent struct {
	BatchID      uint64 `json:"batchId"`
	Manufacturer string `json:"manufacturer"`
	DrugName     string `json:"drugName"`
	Quantity     uint64 `json:"quantity"`
	QRCode       string `json:"qrCode"`
}

// ShipmentCreatedEvent is emitted after a successful CreateShipment.
type ShipmentCreatedEvent struct {
	ShipmentID uint64 `json:"shipmentId"`
	BatchID    uint64 `json:"batchId"`
	From       string `json:"from"`
	To         string `json:"to"`
	Quantity   uint64 `json:"quantity"`
}

// ShipmentReceivedEvent is emitted after a successful ReceiveShipment.
type ShipmentReceivedEvent struct {
	ShipmentID uint64 `json:"shipmentId"`
	BatchID    uint64 `json:"batchId"`
	Receiver   string `json:"receiver"`
	ReceivedAt string `json:"receivedAt"`
}
