// Package docs registers the OpenAPI document served under /swagger/.
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
        "/merges": {
            "post": {
                "description": "Merge two rounds of district results with the chosen topology and return the wide table plus run metrics",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["merges"],
                "summary": "Run a merge",
                "parameters": [
                    {
                        "description": "Rounds and run options",
                        "name": "merge",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/model.MergeRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "Merged table", "schema": {"$ref": "#/definitions/model.MergeResponse"}},
                    "400": {"description": "Invalid input", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "500": {"description": "Internal server error", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/merges/compare": {
            "post": {
                "description": "Run separate, union and staged over the same input and report their metrics side by side",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["merges"],
                "summary": "Compare topologies",
                "parameters": [
                    {
                        "description": "Rounds and run options (topology is ignored)",
                        "name": "merge",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/model.MergeRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "Per-topology metrics", "schema": {"$ref": "#/definitions/model.CompareResponse"}},
                    "400": {"description": "Invalid input", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/runs": {
            "get": {
                "description": "List the run logs of every persisted run",
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "List runs",
                "responses": {
                    "200": {"description": "Run logs", "schema": {"type": "array", "items": {"$ref": "#/definitions/model.RunLog"}}},
                    "503": {"description": "No store configured", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/runs/{id}": {
            "get": {
                "description": "Retrieve the run log and metrics of a run",
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Get run",
                "parameters": [{"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Run log", "schema": {"$ref": "#/definitions/model.RunLog"}},
                    "404": {"description": "Run not found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            },
            "delete": {
                "description": "Delete the run log and any retained rows of a run",
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Delete run",
                "parameters": [{"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Deleted record count", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Run not found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/explain/{topology}": {
            "get": {
                "description": "Describe what a topology computes as SQL, for the given rounds and category lists",
                "produces": ["text/plain"],
                "tags": ["merges"],
                "summary": "Explain topology",
                "parameters": [
                    {"type": "string", "description": "separate, union or staged", "name": "topology", "in": "path", "required": true},
                    {"type": "string", "description": "Round 1 id", "name": "r1", "in": "query"},
                    {"type": "string", "description": "Round 2 id", "name": "r2", "in": "query"},
                    {"type": "string", "description": "Comma separated round 1 categories", "name": "c1", "in": "query"},
                    {"type": "string", "description": "Comma separated round 2 categories", "name": "c2", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "SQL text", "schema": {"type": "string"}},
                    "400": {"description": "Unknown topology", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        }
    },
    "definitions": {
        "model.SourceRow": {
            "type": "object",
            "properties": {
                "key": {"type": "string"},
                "region_code": {"type": "string"},
                "region_name": {"type": "string"},
                "district_name": {"type": "string"},
                "electorate": {"type": "integer"},
                "ballots": {"type": "integer"},
                "valid_votes": {"type": "integer"},
                "votes": {"type": "object", "additionalProperties": {"type": "integer"}}
            }
        },
        "model.Batch": {
            "type": "object",
            "properties": {
                "round": {"type": "string"},
                "categories": {"type": "array", "items": {"type": "string"}},
                "rows": {"type": "array", "items": {"$ref": "#/definitions/model.SourceRow"}}
            }
        },
        "model.MergeRequest": {
            "type": "object",
            "properties": {
                "topology": {"type": "string", "enum": ["separate", "union", "staged"]},
                "round1": {"$ref": "#/definitions/model.Batch"},
                "round2": {"$ref": "#/definitions/model.Batch"},
                "retain_raw": {"type": "boolean"},
                "retain_derived": {"type": "boolean"},
                "externalize": {"type": "boolean"},
                "export": {"type": "string", "enum": ["csv", "json"]}
            }
        },
        "model.Metrics": {
            "type": "object",
            "properties": {
                "stages_ms": {"type": "object", "additionalProperties": {"type": "number"}},
                "stage_order": {"type": "array", "items": {"type": "string"}},
                "total_ms": {"type": "number"},
                "read_ops": {"type": "integer"},
                "write_ops": {"type": "integer"},
                "intermediate_rows": {"type": "integer"},
                "peak_memory_mb": {"type": "number"}
            }
        },
        "model.Warning": {
            "type": "object",
            "properties": {
                "kind": {"type": "string"},
                "round": {"type": "string"},
                "key": {"type": "string"},
                "category": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "model.ExportResult": {
            "type": "object",
            "properties": {
                "type": {"type": "string"},
                "path": {"type": "string"},
                "record_count": {"type": "integer"},
                "success": {"type": "boolean"},
                "error": {"type": "string"},
                "exported_at": {"type": "string"}
            }
        },
        "model.MergeResponse": {
            "type": "object",
            "properties": {
                "run_id": {"type": "string"},
                "topology": {"type": "string"},
                "columns": {"type": "array", "items": {"type": "string"}},
                "rows": {"type": "array", "items": {"type": "object", "additionalProperties": true}},
                "metrics": {"$ref": "#/definitions/model.Metrics"},
                "warnings": {"type": "array", "items": {"$ref": "#/definitions/model.Warning"}},
                "export": {"$ref": "#/definitions/model.ExportResult"}
            }
        },
        "model.CompareResponse": {
            "type": "object",
            "properties": {
                "runs": {"type": "object", "additionalProperties": {"$ref": "#/definitions/model.Metrics"}},
                "run_ids": {"type": "object", "additionalProperties": {"type": "string"}},
                "output_rows": {"type": "integer"},
                "equivalent": {"type": "boolean"}
            }
        },
        "model.RunLog": {
            "type": "object",
            "properties": {
                "run_id": {"type": "string"},
                "topology": {"type": "string"},
                "rounds": {"type": "array", "items": {"type": "string"}},
                "input_rows": {"type": "array", "items": {"type": "integer"}},
                "output_rows": {"type": "integer"},
                "warnings": {"type": "integer"},
                "metrics": {"$ref": "#/definitions/model.Metrics"},
                "started_at": {"type": "string"},
                "finished_at": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Election Merge API",
	Description:      "Merges two rounds of per-district electoral results and compares three execution topologies.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
