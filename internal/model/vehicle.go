package model

import (
    "strconv"
    "time"
)

// Vehicle represents a row in the `vehicles` table. A vehicle belongs to
// exactly one operator and only that operator may change it.
type Vehicle struct {
    ID              uint64    `json:"id"`
    OperatorID      uint64    `json:"operator_id"`
    LicensePlate    string    `json:"license_plate"`
    ChassisNumber   string    `json:"chassis_number"`
    Brand           string    `json:"brand"`
    Model           string    `json:"model"`
    Year            int       `json:"year"`
    BodyType        string    `json:"body_type"`
    FuelType        string    `json:"fuel_type"`
    Transmission    string    `json:"transmission"`
    Color           string    `json:"color"`
    SeatingCapacity int       `json:"seating_capacity"`
    PricePerDay     float64   `json:"price_per_day"`
    Description     string    `json:"description"`
    Features        []string  `json:"features"`
    IsFeatured      bool      `json:"is_featured"`
    IsActive        bool      `json:"is_active"`
    Rating          float64   `json:"rating"`
    Reviews         int       `json:"reviews"`
    CreatedAt       time.Time `json:"created_at"`
    UpdatedAt       time.Time `json:"updated_at"`
}

// DisplayName is the label used on payment forms and receipts.
func (v Vehicle) DisplayName() string {
    name := v.Brand + " " + v.Model
    if v.Year > 0 {
        name += " (" + strconv.Itoa(v.Year) + ")"
    }
    return name
}

// Attachment types accepted in vehicle_attachments.attachment_type.
const (
    AttachmentOR           = "or"
    AttachmentCR           = "cr"
    AttachmentInsurance    = "insurance"
    AttachmentVehiclePhoto = "vehicle_photo"
    AttachmentOther        = "other"
)

// PlaceholderImage is served when a vehicle has no photo attachment.
const PlaceholderImage = "/placeholder-vehicle.jpg"

// VehicleAttachment mirrors `vehicle_attachments`. Only metadata is stored;
// the file itself lives in external storage.
type VehicleAttachment struct {
    ID             uint64    `json:"id"`
    VehicleID      uint64    `json:"vehicle_id"`
    AttachmentType string    `json:"attachment_type"`
    AttachmentURL  string    `json:"attachment_url"`
    CreatedAt      time.Time `json:"created_at"`
}

// OperatorLocation mirrors `operator_locations`.
type OperatorLocation struct {
    ID         uint64   `json:"id"`
    OperatorID uint64   `json:"operator_id"`
    Address    string   `json:"address"`
    City       string   `json:"city"`
    State      string   `json:"state"`
    PostalCode string   `json:"postal_code"`
    Country    string   `json:"country"`
    Latitude   *float64 `json:"latitude,omitempty"`
    Longitude  *float64 `json:"longitude,omitempty"`
    IsActive   bool     `json:"is_active"`
}
