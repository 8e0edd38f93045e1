// Package apidocs registers the OpenAPI description served under /swagger/.
package apidocs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "license": {"name": "MIT", "url": "https://opensource.org/licenses/MIT"},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/chat": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["chat"],
                "summary": "Generate a complete response",
                "parameters": [
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.ChatRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ChatResponse"}},
                    "400": {"description": "Invalid request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "413": {"description": "Body too large", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "415": {"description": "Unsupported media type", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "429": {"description": "All generation slots busy", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "500": {"description": "Generation failed", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Model not loaded", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "504": {"description": "Generation timed out", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/api/chat/stream": {
            "post": {
                "description": "Server-Sent Events: event start, one data event per fragment (CR and LF escaped as \\r and \\n), then exactly one done or error event.",
                "consumes": ["application/json"],
                "produces": ["text/event-stream"],
                "tags": ["chat"],
                "summary": "Stream a response",
                "parameters": [
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.ChatRequest"}}
                ],
                "responses": {
                    "200": {"description": "Event stream", "schema": {"type": "string"}},
                    "400": {"description": "Invalid request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Model not loaded", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["status"],
                "summary": "Liveness and model state",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.HealthResponse"}}}
            }
        },
        "/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["status"],
                "summary": "Model, admission and uptime snapshot",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}}
            }
        },
        "/healthz": {
            "get": {"tags": ["probes"], "summary": "Process liveness", "responses": {"200": {"description": "ok"}}}
        },
        "/readyz": {
            "get": {
                "tags": ["probes"],
                "summary": "Model readiness",
                "responses": {"200": {"description": "ready"}, "503": {"description": "loading"}}
            }
        }
    },
    "definitions": {
        "types.ChatRequest": {
            "type": "object",
            "required": ["prompt"],
            "properties": {
                "prompt": {"type": "string", "minLength": 1, "maxLength": 4096, "example": "Explain recursion in one paragraph."},
                "max_tokens": {"type": "integer", "minimum": 1, "maximum": 1024, "example": 256},
                "temperature": {"type": "number", "minimum": 0, "maximum": 2, "example": 0.7},
                "top_p": {"type": "number", "minimum": 0, "maximum": 1, "example": 0.9}
            }
        },
        "types.ChatResponse": {
            "type": "object",
            "properties": {
                "response": {"type": "string"},
                "prompt_length": {"type": "integer"},
                "response_length": {"type": "integer"},
                "generation_time": {"type": "number"}
            }
        },
        "types.DoneStats": {
            "type": "object",
            "properties": {
                "token_count": {"type": "integer"},
                "generation_time": {"type": "number"}
            }
        },
        "types.StreamError": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "code": {"type": "string", "enum": ["capacity_exceeded", "backend_unavailable", "generation_failed"]}
            }
        },
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "code": {"type": "integer"},
                "kind": {"type": "string"}
            }
        },
        "types.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "healthy"},
                "model_loaded": {"type": "boolean"}
            }
        },
        "types.ModelInfo": {
            "type": "object",
            "properties": {
                "model_name": {"type": "string"},
                "loaded": {"type": "boolean"},
                "model_path": {"type": "string"},
                "backend": {"type": "string"},
                "max_tokens": {"type": "integer"},
                "temperature": {"type": "number"},
                "top_p": {"type": "number"},
                "error": {"type": "string"}
            }
        },
        "types.QueueStatus": {
            "type": "object",
            "properties": {
                "active_requests": {"type": "integer"},
                "max_concurrent": {"type": "integer"},
                "total_processed": {"type": "integer"},
                "total_rejected": {"type": "integer"},
                "queue_available": {"type": "boolean"}
            }
        },
        "types.StatusResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "running"},
                "model": {"$ref": "#/definitions/types.ModelInfo"},
                "queue": {"$ref": "#/definitions/types.QueueStatus"},
                "current_users": {"type": "integer"},
                "max_users": {"type": "integer"},
                "uptime_seconds": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "chatd API",
	Description:      "Chat completion service with bounded concurrency in front of a local llama.cpp model.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
