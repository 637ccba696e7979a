package controllers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/marlowe-motors/garage-api/config"
	"github.com/marlowe-motors/garage-api/models"
	"github.com/stretchr/testify/assert"
)

func vehicleRouterFor(user models.User) *gin.Engine {
	router := setupTestRouter()
	auth := mockAuthMiddleware(user.Auth0ID, user.Role, "token")
	router.POST("/vehicles", auth, CreateVehicle)
	router.GET("/vehicles", auth, ListMyVehicles)
	return router
}

func TestCreateVehicleEndpoint(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)

	customer := models.User{Auth0ID: "auth0|vh-customer", Name: "Customer", Email: "vh-customer@example.com", Role: "customer"}
	db.Create(&customer)
	staff := models.User{Auth0ID: "auth0|vh-staff", Name: "Staff", Email: "vh-staff@example.com", Role: "staff"}
	db.Create(&staff)

	router := vehicleRouterFor(customer)

	body := map[string]interface{}{
		"make":          "Volvo",
		"model":         "XC60",
		"year":          2019,
		"license_plate": "KL-482-PM",
		"mileage":       83000,
	}
	w := doJSON(router, http.MethodPost, "/vehicles", body)
	assert.Equal(t, http.StatusCreated, w.Code)

	data := decodeResponse(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "Volvo", data["make"])
	assert.Equal(t, "KL-482-PM", data["license_plate"])
	owner := data["owner"].(map[string]interface{})
	assert.Equal(t, "vh-customer@example.com", owner["email"])

	// Missing required fields fail binding
	w = doJSON(router, http.MethodPost, "/vehicles", map[string]interface{}{"make": "Volvo"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))

	// Staff do not own vehicles
	w = doJSON(vehicleRouterFor(staff), http.MethodPost, "/vehicles", body)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", errorCode(t, w))
}

func TestListMyVehiclesScoping(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)

	alice := models.User{Auth0ID: "auth0|vh-alice", Name: "Alice", Email: "vh-alice@example.com", Role: "customer"}
	db.Create(&alice)
	bob := models.User{Auth0ID: "auth0|vh-bob", Name: "Bob", Email: "vh-bob@example.com", Role: "customer"}
	db.Create(&bob)
	staff := models.User{Auth0ID: "auth0|vh-staff2", Name: "Staff", Email: "vh-staff2@example.com", Role: "staff"}
	db.Create(&staff)

	db.Create(&models.Vehicle{OwnerID: alice.ID, Make: "Volvo", Model: "XC60", LicensePlate: "AA-001"})
	db.Create(&models.Vehicle{OwnerID: alice.ID, Make: "Skoda", Model: "Octavia", LicensePlate: "AA-002"})
	db.Create(&models.Vehicle{OwnerID: bob.ID, Make: "Ford", Model: "Focus", LicensePlate: "BB-001"})

	w := doJSON(vehicleRouterFor(alice), http.MethodGet, "/vehicles", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeResponse(t, w)["data"].([]interface{}), 2)

	w = doJSON(vehicleRouterFor(bob), http.MethodGet, "/vehicles", nil)
	assert.Len(t, decodeResponse(t, w)["data"].([]interface{}), 1)

	// Staff see the whole fleet
	w = doJSON(vehicleRouterFor(staff), http.MethodGet, "/vehicles", nil)
	assert.Len(t, decodeResponse(t, w)["data"].([]interface{}), 3)
}
