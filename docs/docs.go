// Package docs holds the OpenAPI document served at /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "paths": {
        "/remittances": {
            "get": {"tags": ["remittances"], "summary": "List remittances", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["remittances"], "summary": "Create remittance", "security": [{"BearerAuth": []}], "responses": {"201": {"description": "Created"}}}
        },
        "/remittances/stats": {
            "get": {"tags": ["remittances"], "summary": "Remittance statistics", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}
        },
        "/remittances/redeem": {
            "post": {"tags": ["remittances"], "summary": "Redeem remittance", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}
        },
        "/remittances/{id}": {
            "get": {"tags": ["remittances"], "summary": "Get remittance", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}
        },
        "/remittances/{id}/qr": {
            "get": {"tags": ["remittances"], "summary": "Claim QR code", "produces": ["image/png"], "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}
        },
        "/remittances/{id}/settlement": {
            "get": {"tags": ["remittances"], "summary": "Settlement advice", "produces": ["application/xml"], "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}
        },
        "/remittances/{id}/events": {
            "get": {"tags": ["remittances"], "summary": "Remittance audit trail", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}
        },
        "/remittances/{id}/approve": {
            "post": {"tags": ["remittances"], "summary": "Approve remittance", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}
        },
        "/remittances/{id}/process": {
            "post": {"tags": ["remittances"], "summary": "Process remittance", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}
        },
        "/remittances/{id}/confirm-receipt": {
            "post": {"tags": ["remittances"], "summary": "Confirm receipt", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}
        },
        "/remittances/{id}/complete": {
            "post": {"tags": ["remittances"], "summary": "Complete remittance", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}
        },
        "/remittances/{id}/cancel": {
            "post": {"tags": ["remittances"], "summary": "Cancel remittance", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}
        },
        "/remittances/{id}/fail": {
            "post": {"tags": ["remittances"], "summary": "Fail remittance", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Remittance API",
	Description:      "Inter-branch remittances with one-time claim codes",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
