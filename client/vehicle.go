package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/InventoLabs/dealergate/apierr"
	"github.com/InventoLabs/dealergate/models"
)

// GetVehicle fetches one vehicle record.
func (c *Client) GetVehicle(ctx context.Context, vehicleID string, opts ...RequestOption) (*models.Vehicle, error) {
	if vehicleID == "" {
		return nil, apierr.Validation("vehicle id cannot be empty", apierr.Context{Op: "get_vehicle"})
	}
	var v models.Vehicle
	if err := c.GetJSON(ctx, "/vehicle/"+vehicleID, &v, opts...); err != nil {
		return nil, withVehicle(err, vehicleID, "vehicle")
	}
	return &v, nil
}

// ReplaceVehicle writes a full vehicle document back. The remote API has no
// partial update; callers mutate a fetched copy and replace it whole.
func (c *Client) ReplaceVehicle(ctx context.Context, v *models.Vehicle, opts ...RequestOption) error {
	if v == nil || v.ID == "" {
		return apierr.Validation("vehicle with a non-empty id is required", apierr.Context{Op: "replace_vehicle"})
	}
	return withVehicle(c.PutJSON(ctx, "/vehicle/"+v.ID, v, nil, opts...), v.ID, "vehicle")
}

// VehicleImages reads the vehicle's full gallery collection.
func (c *Client) VehicleImages(ctx context.Context, vehicleID string, opts ...RequestOption) ([]models.VehicleImage, error) {
	if vehicleID == "" {
		return nil, apierr.Validation("vehicle id cannot be empty", apierr.Context{Op: "vehicle_images"})
	}
	var images []models.VehicleImage
	if err := c.GetJSON(ctx, "/vehicle/"+vehicleID+"/images", &images, opts...); err != nil {
		return nil, withVehicle(err, vehicleID, "vehicle gallery")
	}
	return images, nil
}

// ReplaceVehicleImages writes the entire gallery collection back. This is the
// only mutation primitive the gallery has; two concurrent read-modify-write
// cycles on the same vehicle can silently lose one writer's flags.
func (c *Client) ReplaceVehicleImages(ctx context.Context, vehicleID string, images []models.VehicleImage, opts ...RequestOption) error {
	if vehicleID == "" {
		return apierr.Validation("vehicle id cannot be empty", apierr.Context{Op: "replace_vehicle_images"})
	}
	return withVehicle(c.PutJSON(ctx, "/vehicle/"+vehicleID+"/images", images, nil, opts...), vehicleID, "vehicle gallery")
}

// DeleteVehicleImage removes one gallery entry.
func (c *Client) DeleteVehicleImage(ctx context.Context, vehicleID, imageID string, opts ...RequestOption) error {
	if vehicleID == "" || imageID == "" {
		return apierr.Validation("vehicle id and image id are required", apierr.Context{Op: "delete_vehicle_image"})
	}
	return withVehicle(c.Delete(ctx, fmt.Sprintf("/vehicle/%s/images/%s", vehicleID, imageID), opts...), vehicleID, "vehicle image")
}

// SubmitLead forwards a buyer inquiry on the secondary leads path. Unlike the
// main gateway calls this one runs under a fixed deadline; a slow leads
// upstream aborts instead of consuming the retry budget.
func (c *Client) SubmitLead(ctx context.Context, lead *models.Lead, opts ...RequestOption) error {
	if lead == nil || lead.VehicleID == "" {
		return apierr.Validation("lead with a vehicle id is required", apierr.Context{Op: "submit_lead"})
	}
	ctx, cancel := context.WithTimeout(ctx, c.leadTimeout)
	defer cancel()
	return c.DoJSON(ctx, http.MethodPost, "/lead", lead, nil, opts...)
}

// withVehicle enriches a classified error with the vehicle id so NotFound
// messages can name the resource they missed.
func withVehicle(err error, vehicleID, resource string) error {
	if err == nil {
		return nil
	}
	classified := apierr.Classify(err, apierr.Context{Resource: resource, VehicleID: vehicleID})
	if classified.Kind == apierr.KindNotFound && classified.Resource == "" {
		return apierr.NotFound(apierr.Context{
			Op:        classified.Op,
			Resource:  resource,
			VehicleID: vehicleID,
		})
	}
	return classified
}
