// internal/handler/command_handler.go
package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"escpos-service/internal/escpos"
	"escpos-service/internal/utils"
)

// CommandHandler exposes the command table
type CommandHandler struct {
	table *escpos.Table
}

// NewCommandHandler creates a new command handler
func NewCommandHandler(table *escpos.Table) *CommandHandler {
	if table == nil {
		table = escpos.DefaultTable()
	}
	return &CommandHandler{table: table}
}

// RegisterRoutes registers command table routes
func (h *CommandHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/commands", h.ListCommands)
}

// CommandInfo describes one command table entry
type CommandInfo struct {
	Mnemonic string `json:"mnemonic"`
	Prefix   string `json:"prefix"`
	Opcode   string `json:"opcode"`
	Name     string `json:"name"`
	Rule     string `json:"rule"`
	RuleKind string `json:"rule_kind"`
}

// CommandTable is the command table response
type CommandTable struct {
	Version  string        `json:"version"`
	Count    int           `json:"count"`
	Commands []CommandInfo `json:"commands"`
}

// ListCommands lists the recognized commands
// @Summary List known commands
// @Description Get the ESC/POS command table used by the decoder
// @Tags Commands
// @Produce json
// @Param prefix query string false "Filter by prefix" Enums(DLE, ESC, FS, GS)
// @Success 200 {object} utils.APIResponse{data=CommandTable} "Command table"
// @Router /commands [get]
func (h *CommandHandler) ListCommands(c *gin.Context) {
	prefix := strings.ToUpper(c.Query("prefix"))

	commands := make([]CommandInfo, 0, h.table.Len())
	for _, def := range h.table.Definitions() {
		name := escpos.PrefixName(def.Prefix)
		if prefix != "" && name != prefix {
			continue
		}
		commands = append(commands, CommandInfo{
			Mnemonic: def.Mnemonic(),
			Prefix:   name,
			Opcode:   fmt.Sprintf("0x%02X", def.Opcode),
			Name:     def.Name,
			Rule:     def.Rule.String(),
			RuleKind: def.Rule.Kind().String(),
		})
	}

	utils.SuccessResponse(c, http.StatusOK, "Command table retrieved", CommandTable{
		Version:  escpos.TableVersion,
		Count:    len(commands),
		Commands: commands,
	})
}
