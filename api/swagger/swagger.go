package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SMA Grade Engine API",
        "description": "Grade resolution, grading policy lifecycle and class ranking",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Grading Policies", "description": "Grading policy lifecycle"},
        {"name": "Assessments", "description": "Assessment submission and grade resolution"},
        {"name": "Ranks", "description": "Class rank recomputation and export"}
    ],
    "paths": {
        "/grading-policies": {
            "get": {
                "tags": ["Grading Policies"],
                "summary": "List grading policies",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Grading Policies"],
                "summary": "Create draft grading policy",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateGradingPolicyRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid policy", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/grading-policies/active": {
            "get": {
                "tags": ["Grading Policies"],
                "summary": "Get the active grading policy",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "No active policy", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/grading-policies/{id}": {
            "get": {
                "tags": ["Grading Policies"],
                "summary": "Get grading policy",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Grading Policies"],
                "summary": "Update draft grading policy",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateGradingPolicyRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Version conflict or lifecycle violation", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/grading-policies/{id}/activate": {
            "post": {
                "tags": ["Grading Policies"],
                "summary": "Activate grading policy",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/PolicyTransitionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Version conflict or lifecycle violation", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/grading-policies/{id}/archive": {
            "post": {
                "tags": ["Grading Policies"],
                "summary": "Archive grading policy",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/PolicyTransitionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Version conflict or lifecycle violation", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/assessments/submit": {
            "post": {
                "tags": ["Assessments"],
                "summary": "Submit a student's assessment scores",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitAssessmentsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid records", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Concurrent recompute", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/assessments/preview": {
            "post": {
                "tags": ["Assessments"],
                "summary": "Resolve one subject without storing it",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PreviewRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{studentId}/results": {
            "get": {
                "tags": ["Assessments"],
                "summary": "Resolved subject results for a student",
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"},
                    {"name": "termId", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/classes/{classId}/terms/{termId}/ranks": {
            "get": {
                "tags": ["Ranks"],
                "summary": "Stored class ranks",
                "parameters": [
                    {"name": "classId", "in": "path", "required": true, "type": "string"},
                    {"name": "termId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not computed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/classes/{classId}/terms/{termId}/ranks/recompute": {
            "post": {
                "tags": ["Ranks"],
                "summary": "Recompute class ranks",
                "parameters": [
                    {"name": "classId", "in": "path", "required": true, "type": "string"},
                    {"name": "termId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Concurrent recompute", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/classes/{classId}/terms/{termId}/ranks/export": {
            "get": {
                "tags": ["Ranks"],
                "summary": "Export class ranks",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "classId", "in": "path", "required": true, "type": "string"},
                    {"name": "termId", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File"}
                }
            }
        }
    },
    "definitions": {
        "CreateGradingPolicyRequest": {
            "type": "object",
            "required": ["name", "method"],
            "properties": {
                "name": {"type": "string"},
                "method": {"type": "string", "enum": ["AVERAGE_ALL", "WEIGHTED_AVERAGE", "END_OF_TERM_ONLY"]},
                "weight_qa1": {"type": "number"},
                "weight_qa2": {"type": "number"},
                "weight_end_of_term": {"type": "number"},
                "pass_mark": {"type": "number"}
            }
        },
        "UpdateGradingPolicyRequest": {
            "type": "object",
            "required": ["name", "method", "version"],
            "properties": {
                "name": {"type": "string"},
                "method": {"type": "string", "enum": ["AVERAGE_ALL", "WEIGHTED_AVERAGE", "END_OF_TERM_ONLY"]},
                "weight_qa1": {"type": "number"},
                "weight_qa2": {"type": "number"},
                "weight_end_of_term": {"type": "number"},
                "pass_mark": {"type": "number"},
                "version": {"type": "integer"}
            }
        },
        "PolicyTransitionRequest": {
            "type": "object",
            "properties": {
                "version": {"type": "integer"}
            }
        },
        "AssessmentRecord": {
            "type": "object",
            "properties": {
                "subject_id": {"type": "string"},
                "assessment_type": {"type": "string", "enum": ["QA1", "QA2", "END_OF_TERM"]},
                "score": {"type": "number"},
                "is_absent": {"type": "boolean"}
            }
        },
        "SubmitAssessmentsRequest": {
            "type": "object",
            "required": ["student_id", "class_id", "term_id", "records"],
            "properties": {
                "student_id": {"type": "string"},
                "class_id": {"type": "string"},
                "term_id": {"type": "string"},
                "records": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/AssessmentRecord"}
                }
            }
        },
        "ComponentScore": {
            "type": "object",
            "properties": {
                "score": {"type": "number"},
                "is_absent": {"type": "boolean"}
            }
        },
        "PreviewRequest": {
            "type": "object",
            "properties": {
                "policy_id": {"type": "string"},
                "qa1": {"$ref": "#/definitions/ComponentScore"},
                "qa2": {"$ref": "#/definitions/ComponentScore"},
                "end_of_term": {"$ref": "#/definitions/ComponentScore"}
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
