package models

// Vehicle is the inventory API's vehicle record. Only the fields the
// integration reads or writes are modelled; gallery mutations go through the
// images endpoint, not the full vehicle document.
type Vehicle struct {
	ID         string         `json:"vehicleId"`
	Plate      string         `json:"plate,omitempty"`
	Vin        string         `json:"vin,omitempty"`
	Make       string         `json:"make,omitempty"`
	Model      string         `json:"model,omitempty"`
	Version    string         `json:"version,omitempty"`
	Mileage    int            `json:"mileage,omitempty"`
	PriceCents int64          `json:"priceCents,omitempty"`
	Country    string         `json:"country,omitempty"`
	Images     []VehicleImage `json:"images,omitempty"`
}

// VehicleImage is one entry of a vehicle's gallery collection. The remote API
// has no partial update for these: the collection is always replaced whole.
type VehicleImage struct {
	ID       string `json:"imageId"`
	URL      string `json:"url,omitempty"`
	Main     bool   `json:"main"`
	Position int    `json:"position,omitempty"`
}

// UploadedImage is the gallery endpoint's response to a multipart upload.
type UploadedImage struct {
	ImageID string `json:"imageId"`
	URL     string `json:"url,omitempty"`
}

// Lead is a buyer inquiry forwarded to the secondary leads path.
type Lead struct {
	VehicleID string `json:"vehicleId"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Message   string `json:"message,omitempty"`
}
