// Package docs registers the analytics-api OpenAPI document with swag.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "{{.Title}}",
        "description": "{{escape .Description}}",
        "version": "{{.Version}}"
    },
    "basePath": "{{.BasePath}}",
    "paths": {
        "/analytics/bundle": {
            "get": {
                "summary": "Dashboard bundle",
                "description": "Requires analytics:read. Optional breakdowns degrade to empty rows with a warning.",
                "produces": ["application/json"],
                "parameters": [
                    { "$ref": "#/parameters/tenant" },
                    { "$ref": "#/parameters/roles" },
                    { "$ref": "#/parameters/range" },
                    { "$ref": "#/parameters/from" },
                    { "$ref": "#/parameters/to" },
                    { "$ref": "#/parameters/tz" },
                    { "$ref": "#/parameters/group" },
                    { "$ref": "#/parameters/status" },
                    { "$ref": "#/parameters/payment_method" },
                    { "name": "modules", "in": "query", "type": "string", "description": "comma separated: kpis,series,orders,payments,products,customers,projections,anomalies,forecast" },
                    { "name": "anomaly_z", "in": "query", "type": "number", "description": "minimum |z| for anomalies" }
                ],
                "responses": {
                    "200": { "description": "bundle; X-Cache is hit or miss" },
                    "400": { "description": "invalid window or query", "schema": { "$ref": "#/definitions/error" } },
                    "403": { "description": "missing permission", "schema": { "$ref": "#/definitions/error" } }
                }
            }
        },
        "/analytics/export": {
            "get": {
                "summary": "Export the grouped series",
                "description": "Requires analytics:export.",
                "produces": ["text/csv", "application/json"],
                "parameters": [
                    { "$ref": "#/parameters/tenant" },
                    { "$ref": "#/parameters/roles" },
                    { "name": "format", "in": "query", "type": "string", "enum": ["csv", "json"], "default": "csv" },
                    { "$ref": "#/parameters/range" },
                    { "$ref": "#/parameters/from" },
                    { "$ref": "#/parameters/to" },
                    { "$ref": "#/parameters/tz" },
                    { "$ref": "#/parameters/group" },
                    { "$ref": "#/parameters/status" },
                    { "$ref": "#/parameters/payment_method" }
                ],
                "responses": {
                    "200": { "description": "attachment" },
                    "400": { "description": "invalid window or format", "schema": { "$ref": "#/definitions/error" } },
                    "403": { "description": "missing permission", "schema": { "$ref": "#/definitions/error" } }
                }
            }
        },
        "/analytics/refresh": {
            "post": {
                "summary": "Queue a rollup rebuild",
                "description": "Requires analytics:refresh. An empty body rebuilds the default 30 day window.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    { "$ref": "#/parameters/tenant" },
                    { "$ref": "#/parameters/roles" },
                    { "name": "body", "in": "body", "schema": { "$ref": "#/definitions/refreshRequest" } }
                ],
                "responses": {
                    "202": { "description": "accepted", "schema": { "$ref": "#/definitions/refreshAccepted" } },
                    "400": { "description": "invalid window or body", "schema": { "$ref": "#/definitions/error" } },
                    "403": { "description": "missing permission", "schema": { "$ref": "#/definitions/error" } }
                }
            }
        }
    },
    "parameters": {
        "tenant": { "name": "X-Tenant-ID", "in": "header", "type": "string", "required": true },
        "roles": { "name": "X-User-Roles", "in": "header", "type": "string", "description": "comma separated roles" },
        "range": { "name": "range", "in": "query", "type": "string", "enum": ["today", "7d", "30d", "90d", "180d", "365d", "mtd", "ytd"], "default": "30d" },
        "from": { "name": "from", "in": "query", "type": "string", "format": "date" },
        "to": { "name": "to", "in": "query", "type": "string", "format": "date" },
        "tz": { "name": "tz", "in": "query", "type": "integer", "description": "minutes east of UTC, -840..840" },
        "group": { "name": "group", "in": "query", "type": "string", "enum": ["day", "week", "month"], "default": "day" },
        "status": { "name": "status", "in": "query", "type": "string" },
        "payment_method": { "name": "payment_method", "in": "query", "type": "string" }
    },
    "definitions": {
        "error": {
            "type": "object",
            "properties": { "error": { "type": "string" } }
        },
        "refreshRequest": {
            "type": "object",
            "properties": {
                "from": { "type": "string", "format": "date" },
                "to": { "type": "string", "format": "date" },
                "tz_offset_minutes": { "type": "integer" }
            }
        },
        "refreshAccepted": {
            "type": "object",
            "properties": {
                "request_id": { "type": "string" },
                "start": { "type": "string", "format": "date-time" },
                "end": { "type": "string", "format": "date-time" }
            }
        }
    }
}`

var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/api/v1",
	Title:            "storefront analytics API",
	Description:      "Tenant scoped dashboard bundle, export and rollup refresh.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
