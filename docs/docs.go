// Package docs holds the Swagger document served under /swagger/.
// It mirrors the swag annotations on the handlers and must be updated with them.
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
        "/action/comment": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["actions"],
                "summary": "Comment on a post",
                "parameters": [
                    {
                        "description": "Comment request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/post.CommentRequest"}
                    }
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/response.APIResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.APIResponse"}}
                }
            }
        },
        "/action/follow": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["actions"],
                "summary": "Follow or unfollow a user",
                "parameters": [
                    {
                        "description": "Follow toggle request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/user.FollowRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.APIResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.APIResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/response.APIResponse"}}
                }
            }
        },
        "/action/like": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["actions"],
                "summary": "Like or unlike a post",
                "parameters": [
                    {
                        "description": "Like toggle request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/post.LikeRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.APIResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/response.APIResponse"}}
                }
            }
        },
        "/auth/login": {
            "post": {
                "description": "Username comparison is case-sensitive",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Log in",
                "parameters": [
                    {
                        "description": "Credentials",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/user.CredentialsRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.APIResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/response.APIResponse"}}
                }
            }
        },
        "/auth/register": {
            "post": {
                "description": "Usernames are unique regardless of case",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Register a new user",
                "parameters": [
                    {
                        "description": "Credentials",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/user.CredentialsRequest"}
                    }
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/response.APIResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.APIResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/response.APIResponse"}}
                }
            }
        },
        "/notifications": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["notifications"],
                "summary": "List notifications",
                "parameters": [
                    {"type": "integer", "default": 1, "description": "Page number", "name": "page", "in": "query"},
                    {"type": "integer", "default": 20, "description": "Items per page", "name": "per_page", "in": "query"},
                    {"type": "boolean", "description": "Only unread notifications", "name": "unread_only", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.APIResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/response.APIResponse"}}
                }
            }
        },
        "/notifications/read-all": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["notifications"],
                "summary": "Mark all notifications as read",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.APIResponse"}}
                }
            }
        },
        "/notifications/unread-count": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["notifications"],
                "summary": "Count unread notifications",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.APIResponse"}}
                }
            }
        },
        "/notifications/{id}/read": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["notifications"],
                "summary": "Mark a notification as read",
                "parameters": [
                    {"type": "string", "description": "Notification ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.APIResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/response.APIResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/response.APIResponse"}}
                }
            }
        },
        "/posts/create": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Upload an image or video and publish it at the top of the feed",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["posts"],
                "summary": "Create a post",
                "parameters": [
                    {"type": "file", "description": "Image or video", "name": "file", "in": "formData", "required": true},
                    {"type": "string", "description": "Author ID (trust mode only)", "name": "userId", "in": "formData"},
                    {"type": "string", "description": "Caption", "name": "caption", "in": "formData"},
                    {"type": "string", "description": "image or video; detected when omitted", "name": "type", "in": "formData"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/response.APIResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.APIResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/response.APIResponse"}}
                }
            }
        },
        "/posts/feed": {
            "get": {
                "description": "All posts newest first, each with its author's current name, avatar and verification",
                "produces": ["application/json"],
                "tags": ["posts"],
                "summary": "Get the feed",
                "parameters": [
                    {"type": "integer", "default": 1, "description": "Page number", "name": "page", "in": "query"},
                    {"type": "integer", "description": "Items per page; omit for the whole feed", "name": "per_page", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.APIResponse"}}
                }
            }
        },
        "/users/avatar": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["users"],
                "summary": "Upload an avatar",
                "parameters": [
                    {"type": "file", "description": "Image", "name": "file", "in": "formData", "required": true},
                    {"type": "string", "description": "User ID (trust mode only)", "name": "userId", "in": "formData"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.APIResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.APIResponse"}}
                }
            }
        },
        "/users/search": {
            "get": {
                "description": "Case-insensitive substring match on username",
                "produces": ["application/json"],
                "tags": ["users"],
                "summary": "Search users",
                "parameters": [
                    {"type": "string", "description": "Search query", "name": "q", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.APIResponse"}}
                }
            }
        },
        "/users/{id}": {
            "get": {
                "description": "The user without credentials, plus their posts",
                "produces": ["application/json"],
                "tags": ["users"],
                "summary": "Get a profile",
                "parameters": [
                    {"type": "string", "description": "User ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.APIResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/response.APIResponse"}}
                }
            }
        }
    },
    "definitions": {
        "post.CommentRequest": {
            "type": "object",
            "required": ["postId"],
            "properties": {
                "postId": {"type": "string"},
                "text": {"type": "string", "maxLength": 2000},
                "userId": {"type": "string"}
            }
        },
        "post.LikeRequest": {
            "type": "object",
            "required": ["postId"],
            "properties": {
                "postId": {"type": "string"},
                "userId": {"type": "string"}
            }
        },
        "response.APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "response.APIResponse": {
            "type": "object",
            "properties": {
                "data": {},
                "error": {"$ref": "#/definitions/response.APIError"},
                "meta": {"$ref": "#/definitions/response.Meta"},
                "success": {"type": "boolean"}
            }
        },
        "response.Meta": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "per_page": {"type": "integer"},
                "total": {"type": "integer"},
                "total_pages": {"type": "integer"}
            }
        },
        "user.CredentialsRequest": {
            "type": "object",
            "required": ["password", "username"],
            "properties": {
                "password": {"type": "string", "maxLength": 72},
                "username": {"type": "string", "maxLength": 50}
            }
        },
        "user.FollowRequest": {
            "type": "object",
            "required": ["targetId"],
            "properties": {
                "currentId": {"type": "string"},
                "targetId": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "PrekClip API",
	Description:      "Posts with media, likes, comments, follows and search.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
