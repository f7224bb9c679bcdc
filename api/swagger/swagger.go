package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Etapa Productiva API",
        "description": "Instructor capacity allocation and certification eligibility for productive-stage placements",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {
            "name": "Assignments",
            "description": "Instructor assignments per placement and role"
        },
        {
            "name": "Hours",
            "description": "Hour ledger and approval workflow"
        },
        {
            "name": "Projections",
            "description": "Monthly instructor capacity"
        },
        {
            "name": "Bitacoras",
            "description": "Apprentice bitácora tracker"
        },
        {
            "name": "Seguimientos",
            "description": "Supervision check-ins"
        },
        {
            "name": "Eligibility",
            "description": "Certification prerequisites"
        }
    ],
    "paths": {
        "/reports/instructor-hours": {
            "get": {
                "tags": [
                    "Reports"
                ],
                "summary": "Monthly instructor hours report",
                "description": "Programmed against executed hours per instructor, broken down by activity, with overloaded instructors flagged.",
                "produces": [
                    "application/json",
                    "text/csv",
                    "application/pdf"
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "year",
                        "in": "query",
                        "type": "integer",
                        "required": true
                    },
                    {
                        "name": "month",
                        "in": "query",
                        "type": "integer",
                        "required": true
                    },
                    {
                        "name": "format",
                        "in": "query",
                        "type": "string",
                        "enum": [
                            "json",
                            "csv",
                            "pdf"
                        ]
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/assignments": {
            "get": {
                "tags": [
                    "Assignments"
                ],
                "summary": "List assignments",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "placement_id",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "instructor_id",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "status",
                        "in": "query",
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "post": {
                "tags": [
                    "Assignments"
                ],
                "summary": "Assign an instructor to a placement",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/AssignRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "422": {
                        "description": "Business rule violated",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/assignments/{id}": {
            "get": {
                "tags": [
                    "Assignments"
                ],
                "summary": "Get assignment",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/assignments/{id}/reassign": {
            "post": {
                "tags": [
                    "Assignments"
                ],
                "summary": "Reassign remaining hours to another instructor",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/ReassignRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "422": {
                        "description": "Business rule violated",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/assignments/{id}/extend": {
            "post": {
                "tags": [
                    "Assignments"
                ],
                "summary": "Raise programmed hours",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/ExtendRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "422": {
                        "description": "Business rule violated",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/assignments/{id}/withdraw": {
            "post": {
                "tags": [
                    "Assignments"
                ],
                "summary": "Withdraw an assignment",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/WithdrawRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/assignments/{id}/hours": {
            "post": {
                "tags": [
                    "Assignments"
                ],
                "summary": "Record executed hours",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/RecordHoursRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/hours": {
            "get": {
                "tags": [
                    "Hours"
                ],
                "summary": "List hour entries",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "instructor_id",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "assignment_id",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "placement_id",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "status",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "from",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "to",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "page",
                        "in": "query",
                        "type": "integer"
                    },
                    {
                        "name": "page_size",
                        "in": "query",
                        "type": "integer"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "post": {
                "tags": [
                    "Hours"
                ],
                "summary": "Submit executed hours",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/SubmitHoursRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "422": {
                        "description": "Business rule violated",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/hours/{id}/approve": {
            "post": {
                "tags": [
                    "Hours"
                ],
                "summary": "Approve a pending entry",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": false,
                        "schema": {
                            "$ref": "#/definitions/ApproveHoursRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "422": {
                        "description": "Business rule violated",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/hours/{id}/reject": {
            "post": {
                "tags": [
                    "Hours"
                ],
                "summary": "Reject a pending entry",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/RejectRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/projections/{instructorId}": {
            "get": {
                "tags": [
                    "Projections"
                ],
                "summary": "List projections for a year",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "instructorId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "year",
                        "in": "query",
                        "type": "integer",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/projections/{instructorId}/{year}/{month}": {
            "get": {
                "tags": [
                    "Projections"
                ],
                "summary": "Get monthly projection",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "instructorId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "year",
                        "in": "path",
                        "type": "integer",
                        "required": true
                    },
                    {
                        "name": "month",
                        "in": "path",
                        "type": "integer",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/projections/{instructorId}/{year}/{month}/recompute": {
            "post": {
                "tags": [
                    "Projections"
                ],
                "summary": "Rebuild a projection",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "instructorId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "year",
                        "in": "path",
                        "type": "integer",
                        "required": true
                    },
                    {
                        "name": "month",
                        "in": "path",
                        "type": "integer",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/placements/{placementId}/bitacoras": {
            "get": {
                "tags": [
                    "Bitacoras"
                ],
                "summary": "List bitácoras",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "placementId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "overdue",
                        "in": "query",
                        "type": "boolean"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "post": {
                "tags": [
                    "Bitacoras"
                ],
                "summary": "Register next bitácora",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "placementId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": false,
                        "schema": {
                            "$ref": "#/definitions/CreateBitacoraRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/bitacoras/{id}/document": {
            "post": {
                "tags": [
                    "Bitacoras"
                ],
                "summary": "Attach signed document",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/AttachDocumentRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/bitacoras/{id}/verify": {
            "post": {
                "tags": [
                    "Bitacoras"
                ],
                "summary": "Verify bitácora",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": false,
                        "schema": {
                            "$ref": "#/definitions/VerifyRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/bitacoras/{id}/reject": {
            "post": {
                "tags": [
                    "Bitacoras"
                ],
                "summary": "Reject bitácora",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/RejectRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/bitacoras/{id}/reopen": {
            "post": {
                "tags": [
                    "Bitacoras"
                ],
                "summary": "Reopen verified bitácora",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/RejectRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/placements/{placementId}/seguimientos": {
            "get": {
                "tags": [
                    "Seguimientos"
                ],
                "summary": "List seguimientos",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "placementId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "post": {
                "tags": [
                    "Seguimientos"
                ],
                "summary": "Schedule seguimiento",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "placementId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/ScheduleSeguimientoRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/seguimientos/{id}/execute": {
            "post": {
                "tags": [
                    "Seguimientos"
                ],
                "summary": "Record seguimiento results",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/ExecuteSeguimientoRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/seguimientos/{id}/verify": {
            "post": {
                "tags": [
                    "Seguimientos"
                ],
                "summary": "Verify seguimiento",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": false,
                        "schema": {
                            "$ref": "#/definitions/VerifyRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/seguimientos/{id}/reject": {
            "post": {
                "tags": [
                    "Seguimientos"
                ],
                "summary": "Reject seguimiento",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/RejectRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/placements/{placementId}/eligibility": {
            "get": {
                "tags": [
                    "Eligibility"
                ],
                "summary": "Evaluate certification prerequisites",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "placementId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/placements/{placementId}/certification": {
            "post": {
                "tags": [
                    "Eligibility"
                ],
                "summary": "Open certification request",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "placementId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "422": {
                        "description": "Business rule violated",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "AssignRequest": {
            "type": "object",
            "properties": {
                "instructor_id": {
                    "type": "string"
                },
                "placement_id": {
                    "type": "string"
                },
                "role": {
                    "type": "string",
                    "enum": [
                        "FOLLOW_UP",
                        "TECHNICAL",
                        "PROJECT"
                    ]
                },
                "programmed_hours": {
                    "type": "number"
                }
            },
            "required": [
                "instructor_id",
                "placement_id",
                "role"
            ]
        },
        "ReassignRequest": {
            "type": "object",
            "properties": {
                "new_instructor_id": {
                    "type": "string"
                },
                "reason": {
                    "type": "string"
                }
            },
            "required": [
                "new_instructor_id",
                "reason"
            ]
        },
        "ExtendRequest": {
            "type": "object",
            "properties": {
                "additional_hours": {
                    "type": "number"
                },
                "reason": {
                    "type": "string"
                }
            },
            "required": [
                "additional_hours",
                "reason"
            ]
        },
        "WithdrawRequest": {
            "type": "object",
            "properties": {
                "reason": {
                    "type": "string"
                }
            },
            "required": [
                "reason"
            ]
        },
        "RecordHoursRequest": {
            "type": "object",
            "properties": {
                "hours": {
                    "type": "number"
                },
                "description": {
                    "type": "string"
                }
            },
            "required": [
                "hours",
                "description"
            ]
        },
        "SubmitHoursRequest": {
            "type": "object",
            "properties": {
                "instructor_id": {
                    "type": "string"
                },
                "assignment_id": {
                    "type": "string"
                },
                "date": {
                    "type": "string",
                    "format": "date"
                },
                "activity_type": {
                    "type": "string",
                    "enum": [
                        "FOLLOW_UP_VISIT",
                        "BITACORA_REVIEW",
                        "TECHNICAL_ADVISORY",
                        "PROJECT_ADVISORY"
                    ]
                },
                "hours": {
                    "type": "number"
                },
                "description": {
                    "type": "string"
                }
            },
            "required": [
                "instructor_id",
                "assignment_id",
                "date",
                "activity_type",
                "hours",
                "description"
            ]
        },
        "ApproveHoursRequest": {
            "type": "object",
            "properties": {
                "overtime": {
                    "type": "boolean"
                },
                "note": {
                    "type": "string"
                }
            }
        },
        "RejectRequest": {
            "type": "object",
            "properties": {
                "reason": {
                    "type": "string"
                }
            },
            "required": [
                "reason"
            ]
        },
        "CreateBitacoraRequest": {
            "type": "object",
            "properties": {
                "submitted_at": {
                    "type": "string",
                    "format": "date"
                }
            }
        },
        "AttachDocumentRequest": {
            "type": "object",
            "properties": {
                "document_token": {
                    "type": "string"
                }
            },
            "required": [
                "document_token"
            ]
        },
        "VerifyRequest": {
            "type": "object",
            "properties": {
                "observation": {
                    "type": "string"
                }
            }
        },
        "ScheduleSeguimientoRequest": {
            "type": "object",
            "properties": {
                "kind": {
                    "type": "string",
                    "enum": [
                        "INITIAL",
                        "INTERMEDIATE",
                        "FINAL",
                        "EXTRAORDINARY"
                    ]
                },
                "scheduled_for": {
                    "type": "string",
                    "format": "date"
                }
            },
            "required": [
                "kind",
                "scheduled_for"
            ]
        },
        "ExecuteSeguimientoRequest": {
            "type": "object",
            "properties": {
                "results": {
                    "type": "string"
                },
                "improvement_plan": {
                    "type": "string"
                },
                "document_token": {
                    "type": "string"
                }
            },
            "required": [
                "results"
            ]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {
                    "type": "integer"
                },
                "page_size": {
                    "type": "integer"
                },
                "total_count": {
                    "type": "integer"
                }
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                },
                "status": {
                    "type": "integer"
                },
                "details": {
                    "type": "object"
                }
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {
                    "type": "object"
                },
                "error": {
                    "$ref": "#/definitions/APIError"
                },
                "pagination": {
                    "$ref": "#/definitions/Pagination"
                },
                "meta": {
                    "type": "object"
                }
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
