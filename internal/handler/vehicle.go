package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vehicle-rental/internal/apperr"
	"github.com/iliyamo/vehicle-rental/internal/middleware"
	"github.com/iliyamo/vehicle-rental/internal/model"
	"github.com/iliyamo/vehicle-rental/internal/service"
)

// VehicleHandler exposes the public catalog and the operator's fleet
// management. Operator methods assume JWTAuth and RequireRole(operator).
type VehicleHandler struct {
	Catalog *service.CatalogService
}

func NewVehicleHandler(catalog *service.CatalogService) *VehicleHandler {
	if catalog == nil {
		panic("nil catalog passed to NewVehicleHandler")
	}
	return &VehicleHandler{Catalog: catalog}
}

type vehicleReq struct {
	LicensePlate    string   `json:"license_plate" validate:"required,max=20"`
	ChassisNumber   string   `json:"chassis_number" validate:"required,max=50"`
	Brand           string   `json:"brand" validate:"required,max=100"`
	Model           string   `json:"model" validate:"required,max=100"`
	Year            int      `json:"year" validate:"omitempty,gte=1950,lte=2100"`
	BodyType        string   `json:"body_type"`
	FuelType        string   `json:"fuel_type"`
	Transmission    string   `json:"transmission"`
	Color           string   `json:"color"`
	SeatingCapacity int      `json:"seating_capacity" validate:"omitempty,gte=1,lte=60"`
	PricePerDay     float64  `json:"price_per_day" validate:"gt=0"`
	Description     string   `json:"description"`
	Features        []string `json:"features"`
	IsFeatured      bool     `json:"is_featured"`
	IsActive        *bool    `json:"is_active"`
}

type attachmentReq struct {
	AttachmentType string `json:"attachment_type" validate:"required,attachment_type"`
	AttachmentURL  string `json:"attachment_url" validate:"required,url"`
}

func (r vehicleReq) toVehicle() model.Vehicle {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return model.Vehicle{
		LicensePlate:    r.LicensePlate,
		ChassisNumber:   r.ChassisNumber,
		Brand:           r.Brand,
		Model:           r.Model,
		Year:            r.Year,
		BodyType:        r.BodyType,
		FuelType:        r.FuelType,
		Transmission:    r.Transmission,
		Color:           r.Color,
		SeatingCapacity: r.SeatingCapacity,
		PricePerDay:     r.PricePerDay,
		Description:     r.Description,
		Features:        r.Features,
		IsFeatured:      r.IsFeatured,
		IsActive:        active,
	}
}

// List handles GET /vehicles?page=&per_page=.
func (h *VehicleHandler) List(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("per_page"))
	out, err := h.Catalog.ListActive(c.Request().Context(), page, size)
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, echo.Map{"data": out})
}

// Detail handles GET /vehicles/:id.
func (h *VehicleHandler) Detail(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	d, err := h.Catalog.GetActive(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, echo.Map{"vehicle": d})
}

// Availability handles GET /vehicles/:id/availability?start_date=&end_date=.
func (h *VehicleHandler) Availability(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	start, err := parseDate("start_date", c.QueryParam("start_date"))
	if err != nil {
		return err
	}
	end, err := parseDate("end_date", c.QueryParam("end_date"))
	if err != nil {
		return err
	}
	if start == nil || end == nil {
		field := "start_date"
		if start != nil {
			field = "end_date"
		}
		return apperr.MissingField(field)
	}
	ok, err := h.Catalog.IsAvailable(c.Request().Context(), id, *start, *end)
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, echo.Map{"vehicle_id": id, "available": ok})
}

// Mine handles GET /operator/vehicles.
func (h *VehicleHandler) Mine(c echo.Context) error {
	out, err := h.Catalog.ListByOperator(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, echo.Map{"vehicles": out})
}

// Create handles POST /operator/vehicles.
func (h *VehicleHandler) Create(c echo.Context) error {
	var req vehicleReq
	if err := bind(c, &req); err != nil {
		return err
	}
	v, err := h.Catalog.CreateVehicle(c.Request().Context(), middleware.UserID(c), req.toVehicle())
	if err != nil {
		return err
	}
	return success(c, http.StatusCreated, echo.Map{"vehicle": v})
}

// Update handles PUT /operator/vehicles/:id.
func (h *VehicleHandler) Update(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req vehicleReq
	if err := bind(c, &req); err != nil {
		return err
	}
	v, err := h.Catalog.UpdateVehicle(c.Request().Context(), middleware.UserID(c), id, req.toVehicle())
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, echo.Map{"vehicle": v})
}

// Delete handles DELETE /operator/vehicles/:id.
func (h *VehicleHandler) Delete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.Catalog.DeleteVehicle(c.Request().Context(), middleware.UserID(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// AddAttachment handles POST /operator/vehicles/:id/attachments. Only the
// metadata of an already uploaded file is recorded.
func (h *VehicleHandler) AddAttachment(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req attachmentReq
	if err := bind(c, &req); err != nil {
		return err
	}
	a, err := h.Catalog.AddAttachment(c.Request().Context(), middleware.UserID(c), id, req.AttachmentType, req.AttachmentURL)
	if err != nil {
		return err
	}
	return success(c, http.StatusCreated, echo.Map{"attachment": a})
}
