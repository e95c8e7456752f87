package dto

import "github.com/customeros/mailsync/internal/enum"

type CreateAccountRequest struct {
	EmailAddress  string          `json:"emailAddress" binding:"required"`
	Host          string          `json:"host" binding:"required"`
	Port          int             `json:"port" binding:"required,min=1,max=65535"`
	Username      string          `json:"username" binding:"required"`
	Password      string          `json:"password" binding:"required"`
	SocketType    enum.SocketType `json:"socketType"`
	AutomaticSync bool            `json:"automaticSync"`
}

// FlagUpdateRequest names flags as IMAP system flags, with or without the
// leading backslash.
type FlagUpdateRequest struct {
	Folder string   `json:"folder" binding:"required"`
	UID    uint32   `json:"uid" binding:"required"`
	Add    []string `json:"add"`
	Remove []string `json:"remove"`
}
