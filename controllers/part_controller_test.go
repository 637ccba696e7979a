package controllers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/marlowe-motors/garage-api/config"
	"github.com/marlowe-motors/garage-api/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCreatePartEndpoint(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)

	staff := models.User{Auth0ID: "auth0|pc-staff", Name: "Staff", Email: "pc-staff@example.com", Role: "staff"}
	db.Create(&staff)
	tech := models.User{Auth0ID: "auth0|pc-tech", Name: "Tech", Email: "pc-tech@example.com", Role: "technician"}
	db.Create(&tech)

	staffRouter := setupTestRouter()
	staffRouter.POST("/parts", mockAuthMiddleware(staff.Auth0ID, staff.Role, "token"), CreatePart)
	techRouter := setupTestRouter()
	techRouter.POST("/parts", mockAuthMiddleware(tech.Auth0ID, tech.Role, "token"), CreatePart)

	body := map[string]interface{}{
		"sku":           "PAD-FRONT-01",
		"name":          "Front brake pads",
		"unit_price":    "25.50",
		"current_stock": 12,
		"reorder_point": 4,
	}

	w := doJSON(staffRouter, http.MethodPost, "/parts", body)
	assert.Equal(t, http.StatusCreated, w.Code)
	data := decodeResponse(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "PAD-FRONT-01", data["sku"])
	assert.Equal(t, float64(12), data["current_stock"])

	// Duplicate SKU is a conflict
	w = doJSON(staffRouter, http.MethodPost, "/parts", body)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "PART_EXISTS", errorCode(t, w))

	// Only staff manage the catalog
	body["sku"] = "PAD-REAR-01"
	w = doJSON(techRouter, http.MethodPost, "/parts", body)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestListAndGetPartsEndpoint(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)

	tech := models.User{Auth0ID: "auth0|pl-tech", Name: "Tech", Email: "pl-tech@example.com", Role: "technician"}
	db.Create(&tech)
	customer := models.User{Auth0ID: "auth0|pl-customer", Name: "Customer", Email: "pl-customer@example.com", Role: "customer"}
	db.Create(&customer)

	part := models.Part{Name: "Oil filter", SKU: "FLT-OIL-01", UnitPrice: decimal.NewFromFloat(8.75), CurrentStock: 20}
	db.Create(&part)

	techRouter := setupTestRouter()
	techAuth := mockAuthMiddleware(tech.Auth0ID, tech.Role, "token")
	techRouter.GET("/parts", techAuth, ListParts)
	techRouter.GET("/parts/:id", techAuth, GetPart)

	w := doJSON(techRouter, http.MethodGet, "/parts", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeResponse(t, w)["data"].([]interface{})
	assert.Len(t, data, 1)

	w = doJSON(techRouter, http.MethodGet, fmt.Sprintf("/parts/%d", part.ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(techRouter, http.MethodGet, "/parts/9999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// The inventory is not customer-facing
	customerRouter := setupTestRouter()
	customerRouter.GET("/parts", mockAuthMiddleware(customer.Auth0ID, customer.Role, "token"), ListParts)
	w = doJSON(customerRouter, http.MethodGet, "/parts", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdjustStockEndpoint(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)

	staff := models.User{Auth0ID: "auth0|pa-staff", Name: "Staff", Email: "pa-staff@example.com", Role: "staff"}
	db.Create(&staff)

	part := models.Part{Name: "Wiper blade", SKU: "WPR-01", UnitPrice: decimal.NewFromFloat(12.00), CurrentStock: 5}
	db.Create(&part)

	router := setupTestRouter()
	auth := mockAuthMiddleware(staff.Auth0ID, staff.Role, "token")
	router.POST("/parts/:id/adjust", auth, AdjustStock)
	router.GET("/parts/:id/adjustments", auth, ListStockAdjustments)

	w := doJSON(router, http.MethodPost, fmt.Sprintf("/parts/%d/adjust", part.ID), map[string]interface{}{
		"delta":  10,
		"reason": "delivery received",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeResponse(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(5), data["previous_stock"])
	assert.Equal(t, float64(15), data["new_stock"])

	// Going below zero is refused
	w = doJSON(router, http.MethodPost, fmt.Sprintf("/parts/%d/adjust", part.ID), map[string]interface{}{
		"delta":  -99,
		"reason": "typo",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Reason is mandatory
	w = doJSON(router, http.MethodPost, fmt.Sprintf("/parts/%d/adjust", part.ID), map[string]interface{}{
		"delta": 1,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// The audit trail records the applied correction
	w = doJSON(router, http.MethodGet, fmt.Sprintf("/parts/%d/adjustments", part.ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	trail := decodeResponse(t, w)["data"].([]interface{})
	assert.Len(t, trail, 1)
}
