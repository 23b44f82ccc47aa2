package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Vision Care Fulfillment API",
        "description": "Student fulfillment workflow: phase transitions and exclusive frame allocation.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [
        {"BearerAuth": []}
    ],
    "tags": [
        {"name": "Students", "description": "Phase workflow of a student"},
        {"name": "Frames", "description": "Frame inventory and allocation"}
    ],
    "paths": {
        "/students/{id}": {
            "get": {
                "tags": ["Students"],
                "summary": "Get a student's workflow state",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Student not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}/transitions": {
            "post": {
                "tags": ["Students"],
                "summary": "Move a student to another phase",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ApplyTransitionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid phase or missing frame selection", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Frame unavailable or concurrent modification", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Allocated frame mismatch", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}/history": {
            "get": {
                "tags": ["Students"],
                "summary": "List a student's phase history, newest first",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Student not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/batch-transitions": {
            "post": {
                "tags": ["Students"],
                "summary": "Move several students to the same phase",
                "description": "Each student is processed independently. The response lists one result per student in request order and a summary in meta.",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BatchTransitionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid batch", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/frames": {
            "get": {
                "tags": ["Frames"],
                "summary": "List frames",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string", "enum": ["AVAILABLE", "ALLOCATED", "LOST", "DAMAGED"]},
                    {"name": "type", "in": "query", "type": "string", "enum": ["MALE", "FEMALE", "UNISEX"]},
                    {"name": "sizeId", "in": "query", "type": "string", "description": "Size id, or none for general size"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Frames"],
                "summary": "Register a frame in inventory",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateFrameRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Serial number already registered", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/frames/{id}": {
            "get": {
                "tags": ["Frames"],
                "summary": "Get a frame",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Frame not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/frames/{id}/allocate": {
            "post": {
                "tags": ["Frames"],
                "summary": "Allocate a frame to a student",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/StudentRef"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Frame unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/frames/{id}/release": {
            "post": {
                "tags": ["Frames"],
                "summary": "Release a frame held by a student",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/StudentRef"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Frame not held by the student", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/frames/{id}/status": {
            "patch": {
                "tags": ["Frames"],
                "summary": "Correct a frame's status",
                "description": "Marking an allocated frame LOST or DAMAGED detaches it from its student.",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ChangeFrameStatusRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Frame retired", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/frames/{id}/size": {
            "patch": {
                "tags": ["Frames"],
                "summary": "Change a frame's size",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ChangeFrameSizeRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "ApplyTransitionRequest": {
            "type": "object",
            "required": ["targetPhase"],
            "properties": {
                "targetPhase": {"type": "string", "enum": ["SCREENING", "CONSULTATION", "PRODUCTION", "DELIVERED"]},
                "frameId": {"type": "string"},
                "note": {"type": "string", "maxLength": 1000},
                "outcomeStatus": {"type": "string", "enum": ["PENDING", "APPROVED", "REJECTED", "NOT_ELIGIBLE"]},
                "expectedPhase": {"type": "string", "enum": ["SCREENING", "CONSULTATION", "PRODUCTION", "DELIVERED"]}
            }
        },
        "BatchTransitionRequest": {
            "type": "object",
            "required": ["studentIds", "targetPhase"],
            "properties": {
                "studentIds": {"type": "array", "items": {"type": "string"}},
                "targetPhase": {"type": "string", "enum": ["SCREENING", "CONSULTATION", "PRODUCTION", "DELIVERED"]},
                "frameSelectionPlan": {"type": "object", "additionalProperties": {"type": "string"}},
                "note": {"type": "string", "maxLength": 1000},
                "outcomeStatus": {"type": "string", "enum": ["PENDING", "APPROVED", "REJECTED", "NOT_ELIGIBLE"]}
            }
        },
        "CreateFrameRequest": {
            "type": "object",
            "required": ["serialNumber", "type"],
            "properties": {
                "serialNumber": {"type": "string", "maxLength": 64},
                "type": {"type": "string", "enum": ["MALE", "FEMALE", "UNISEX"]},
                "sizeId": {"type": "string"}
            }
        },
        "StudentRef": {
            "type": "object",
            "required": ["studentId"],
            "properties": {
                "studentId": {"type": "string"}
            }
        },
        "ChangeFrameStatusRequest": {
            "type": "object",
            "required": ["status"],
            "properties": {
                "status": {"type": "string", "enum": ["AVAILABLE", "LOST", "DAMAGED"]}
            }
        },
        "ChangeFrameSizeRequest": {
            "type": "object",
            "properties": {
                "sizeId": {"type": "string", "x-nullable": true}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
