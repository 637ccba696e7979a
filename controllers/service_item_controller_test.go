package controllers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/marlowe-motors/garage-api/config"
	"github.com/marlowe-motors/garage-api/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func serviceCatalogRouterFor(user models.User) *gin.Engine {
	router := setupTestRouter()
	auth := mockAuthMiddleware(user.Auth0ID, user.Role, "token")
	router.POST("/services", auth, CreateServiceItem)
	router.GET("/services", auth, ListServiceItems)
	router.PUT("/services/:id", auth, UpdateServiceItem)
	return router
}

func TestCreateServiceItemEndpoint(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)

	staff := models.User{Auth0ID: "auth0|sv-staff", Name: "Staff", Email: "sv-staff@example.com", Role: "staff"}
	db.Create(&staff)
	customer := models.User{Auth0ID: "auth0|sv-customer", Name: "Customer", Email: "sv-customer@example.com", Role: "customer"}
	db.Create(&customer)

	router := serviceCatalogRouterFor(staff)

	body := map[string]interface{}{
		"name":         "Oil change",
		"price":        "49.90",
		"duration_min": 45,
	}
	w := doJSON(router, http.MethodPost, "/services", body)
	assert.Equal(t, http.StatusCreated, w.Code)
	data := decodeResponse(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "Oil change", data["name"])
	assert.Equal(t, "49.9", data["price"])
	assert.Equal(t, true, data["active"])

	// Duplicate name is a conflict
	w = doJSON(router, http.MethodPost, "/services", body)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "SERVICE_EXISTS", errorCode(t, w))

	// Customers cannot manage the catalog
	body["name"] = "Tire rotation"
	w = doJSON(serviceCatalogRouterFor(customer), http.MethodPost, "/services", body)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestListServiceItemsVisibility(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)

	staff := models.User{Auth0ID: "auth0|sv-staff2", Name: "Staff", Email: "sv-staff2@example.com", Role: "staff"}
	db.Create(&staff)
	customer := models.User{Auth0ID: "auth0|sv-customer2", Name: "Customer", Email: "sv-customer2@example.com", Role: "customer"}
	db.Create(&customer)

	db.Create(&models.ServiceItem{Name: "Oil change", Price: decimal.NewFromFloat(49.90), DurationMin: 45, Active: true})
	inactive := models.ServiceItem{Name: "Engine swap", Price: decimal.NewFromFloat(2500), DurationMin: 600, Active: false}
	db.Create(&inactive)
	db.Model(&inactive).Update("active", false)

	// Customers only see active services
	w := doJSON(serviceCatalogRouterFor(customer), http.MethodGet, "/services", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeResponse(t, w)["data"].([]interface{}), 1)

	// Staff see retired entries too
	w = doJSON(serviceCatalogRouterFor(staff), http.MethodGet, "/services", nil)
	assert.Len(t, decodeResponse(t, w)["data"].([]interface{}), 2)
}

func TestUpdateServiceItemEndpoint(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)

	staff := models.User{Auth0ID: "auth0|sv-staff3", Name: "Staff", Email: "sv-staff3@example.com", Role: "staff"}
	db.Create(&staff)

	item := models.ServiceItem{Name: "Brake inspection", Price: decimal.NewFromFloat(35), DurationMin: 30, Active: true}
	db.Create(&item)

	router := serviceCatalogRouterFor(staff)

	// Partial update leaves unmentioned fields alone
	w := doJSON(router, http.MethodPut, fmt.Sprintf("/services/%d", item.ID),
		map[string]interface{}{"price": "39.50", "active": false})
	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeResponse(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "Brake inspection", data["name"])
	assert.Equal(t, "39.5", data["price"])
	assert.Equal(t, false, data["active"])

	w = doJSON(router, http.MethodPut, "/services/9999", map[string]interface{}{"active": true})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, w))
}
