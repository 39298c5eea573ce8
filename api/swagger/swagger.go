package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Afterschool Roster API",
        "description": "Synchronises after-school enrollments from the student information warehouse and serves daily rosters.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": ["http", "https"],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Classes", "description": "Class offerings synced from the warehouse"},
        {"name": "Rosters", "description": "Per-class rosters with attendance"},
        {"name": "Enrollments", "description": "Manual enrollment edits"},
        {"name": "Attendance", "description": "Staff-marked absences"},
        {"name": "Sync", "description": "Warehouse reconciliation"},
        {"name": "Digest", "description": "Daily roster email"},
        {"name": "Audit", "description": "Mutation trail"}
    ],
    "paths": {
        "/classes": {
            "get": {
                "tags": ["Classes"],
                "summary": "List classes",
                "parameters": [
                    {"name": "active", "in": "query", "type": "boolean"},
                    {"name": "day", "in": "query", "type": "string", "enum": ["monday", "tuesday", "wednesday", "thursday", "unknown"]},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "sort", "in": "query", "type": "string"},
                    {"name": "order", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/classes/{id}": {
            "get": {
                "tags": ["Classes"],
                "summary": "Get class detail with enrollment count",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/classes/{id}/roster": {
            "get": {
                "tags": ["Rosters"],
                "summary": "Roster of one class with attendance",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "date", "in": "query", "type": "string", "format": "date"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/classes/{id}/roster/print": {
            "get": {
                "tags": ["Rosters"],
                "summary": "Download a printable roster",
                "produces": ["application/pdf", "text/csv", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["pdf", "csv", "xlsx"]},
                    {"name": "date", "in": "query", "type": "string", "format": "date"}
                ],
                "responses": {"200": {"description": "File", "schema": {"type": "file"}}}
            }
        },
        "/classes/{id}/absences": {
            "put": {
                "tags": ["Attendance"],
                "summary": "Mark a student absent for a class date",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/MarkAbsenceRequest"}}
                ],
                "responses": {
                    "200": {"description": "Already marked", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "201": {"description": "Marked", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/classes/{id}/absences/{studentId}": {
            "delete": {
                "tags": ["Attendance"],
                "summary": "Clear a manual absence",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "studentId", "in": "path", "required": true, "type": "integer"},
                    {"name": "date", "in": "query", "type": "string", "format": "date"}
                ],
                "responses": {"204": {"description": "Cleared"}}
            }
        },
        "/rosters/today": {
            "get": {
                "tags": ["Rosters"],
                "summary": "Rosters of every class meeting on a date",
                "parameters": [{"name": "date", "in": "query", "type": "string", "format": "date"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/enrollments": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "List enrollments",
                "parameters": [
                    {"name": "class_id", "in": "query", "type": "string"},
                    {"name": "student_id", "in": "query", "type": "integer"},
                    {"name": "status", "in": "query", "type": "string", "enum": ["active", "inactive", "removed"]},
                    {"name": "provenance", "in": "query", "type": "string", "enum": ["external", "manual"]},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Enrollments"],
                "summary": "Add a manual enrollment",
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateEnrollmentRequest"}}],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/enrollments/{id}": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "Get enrollment",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "patch": {
                "tags": ["Enrollments"],
                "summary": "Edit a manual enrollment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateEnrollmentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "Feed-owned or inactive", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Enrollments"],
                "summary": "Soft-delete an enrollment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/RemoveEnrollmentRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/sync": {
            "post": {
                "tags": ["Sync"],
                "summary": "Run a roster sync pass now",
                "responses": {
                    "200": {"description": "Summary", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Pass aborted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/digest/send": {
            "post": {
                "tags": ["Digest"],
                "summary": "Email the roster digest for a date",
                "parameters": [{"name": "date", "in": "query", "type": "string", "format": "date"}],
                "responses": {
                    "200": {"description": "Result", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Delivery failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/audit": {
            "get": {
                "tags": ["Audit"],
                "summary": "List audit entries, newest first",
                "parameters": [
                    {"name": "table", "in": "query", "type": "string"},
                    {"name": "record_id", "in": "query", "type": "string"},
                    {"name": "action", "in": "query", "type": "string", "enum": ["insert", "update", "delete", "sync"]},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/metrics/summary": {
            "get": {
                "summary": "JSON metrics snapshot including the last sync pass",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        }
    },
    "definitions": {
        "CreateEnrollmentRequest": {
            "type": "object",
            "required": ["class_id", "student_external_id"],
            "properties": {
                "class_id": {"type": "string", "format": "uuid"},
                "student_external_id": {"type": "integer"},
                "category": {"type": "string", "enum": ["enrolled", "registered", "trial", "financial_aid", "drop_in"]},
                "fee_paid": {"type": "boolean"},
                "start_date": {"type": "string", "format": "date"},
                "end_date": {"type": "string", "format": "date"},
                "notes": {"type": "string"}
            }
        },
        "UpdateEnrollmentRequest": {
            "type": "object",
            "properties": {
                "category": {"type": "string", "enum": ["enrolled", "registered", "trial", "financial_aid", "drop_in"]},
                "fee_paid": {"type": "boolean"},
                "start_date": {"type": "string", "format": "date"},
                "end_date": {"type": "string", "format": "date"},
                "notes": {"type": "string"}
            }
        },
        "RemoveEnrollmentRequest": {
            "type": "object",
            "properties": {"reason": {"type": "string"}}
        },
        "MarkAbsenceRequest": {
            "type": "object",
            "required": ["student_external_id"],
            "properties": {
                "student_external_id": {"type": "integer"},
                "date": {"type": "string", "format": "date"}
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
