package model

// Role groups permission strings and may inherit from other roles, forming
// a DAG. Built-in roles cannot be edited or deleted.
type Role struct {
	ID          string   `json:"id" gorm:"primaryKey"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions" gorm:"serializer:json"`
	Inherits    []string `json:"inherits" gorm:"serializer:json"`
	Builtin     bool     `json:"builtin"`
}

func (Role) TableName() string { return "roles" }
