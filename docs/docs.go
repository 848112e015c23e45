// Package docs registers the swagger document served at /swagger. It is
// kept in step with the swag annotations on the handlers by hand.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/auth/login": {"post": {"tags": ["auth"], "summary": "Login", "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}}}},
        "/auth/register": {"post": {"tags": ["auth"], "summary": "Register", "responses": {"201": {"description": "Created"}, "409": {"description": "Conflict"}}}},
        "/auth/logout": {"post": {"tags": ["auth"], "summary": "Logout", "responses": {"200": {"description": "OK"}}}},
        "/me": {"get": {"tags": ["auth"], "summary": "Current user", "responses": {"401": {"description": "No active session"}, "200": {"description": "OK"}}}},
        "/children": {
            "get": {"tags": ["children"], "summary": "List children", "responses": {"401": {"description": "No active session"}, "200": {"description": "OK"}}},
            "post": {"tags": ["children"], "summary": "Register child", "responses": {"401": {"description": "No active session"}, "201": {"description": "Created"}}}
        },
        "/children/{id}": {"patch": {"tags": ["children"], "summary": "Update child", "responses": {"401": {"description": "No active session"}, "200": {"description": "OK"}}}},
        "/children/{id}/code": {"post": {"tags": ["children"], "summary": "Regenerate linking code", "responses": {"401": {"description": "No active session"}, "200": {"description": "OK"}}}},
        "/children/{id}/history": {
            "get": {"tags": ["history"], "summary": "Location history", "responses": {"401": {"description": "No active session"}, "200": {"description": "OK"}}},
            "post": {"tags": ["history"], "summary": "Record location", "responses": {"401": {"description": "No active session"}, "201": {"description": "Created"}, "202": {"description": "Queued"}}}
        },
        "/children/{id}/watch": {
            "post": {"tags": ["live"], "summary": "Follow child", "responses": {"401": {"description": "No active session"}, "200": {"description": "OK"}}},
            "delete": {"tags": ["live"], "summary": "Unfollow child", "responses": {"401": {"description": "No active session"}, "200": {"description": "OK"}}}
        },
        "/children/{id}/locate": {"post": {"tags": ["live"], "summary": "Request location", "responses": {"401": {"description": "No active session"}, "202": {"description": "Accepted"}}}},
        "/safe-zones": {
            "get": {"tags": ["safe-zones"], "summary": "List safe zones", "responses": {"401": {"description": "No active session"}, "200": {"description": "OK"}}},
            "post": {"tags": ["safe-zones"], "summary": "Create safe zone", "responses": {"401": {"description": "No active session"}, "201": {"description": "Created"}}}
        },
        "/safe-zones/{id}": {
            "get": {"tags": ["safe-zones"], "summary": "Get safe zone", "responses": {"401": {"description": "No active session"}, "200": {"description": "OK"}}},
            "patch": {"tags": ["safe-zones"], "summary": "Update safe zone", "responses": {"401": {"description": "No active session"}, "200": {"description": "OK"}}},
            "delete": {"tags": ["safe-zones"], "summary": "Delete safe zone", "responses": {"401": {"description": "No active session"}, "200": {"description": "OK"}}}
        },
        "/outbox/flush": {"post": {"tags": ["history"], "summary": "Flush offline records", "responses": {"401": {"description": "No active session"}, "200": {"description": "OK"}}}},
        "/live": {"get": {"tags": ["live"], "summary": "Live state", "responses": {"401": {"description": "No active session"}, "200": {"description": "OK"}}}},
        "/live/connect": {"post": {"tags": ["live"], "summary": "Connect live channel", "responses": {"401": {"description": "No active session"}, "200": {"description": "OK"}}}},
        "/live/disconnect": {"post": {"tags": ["live"], "summary": "Disconnect live channel", "responses": {"401": {"description": "No active session"}, "200": {"description": "OK"}}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:3000",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "Geografica Dashboard API",
	Description:      "Guardian dashboard for family location tracking. Routes under /api require a guardian logged in through /api/auth/login; the session is held by the dashboard process.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
