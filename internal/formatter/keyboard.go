package formatter

import (
	"strconv"
	"strings"

	"github.com/go-telegram/bot/models"
)

// BuildCaseKeyboard creates an inline keyboard linking to the case; nil without a base URL
func BuildCaseKeyboard(caseURLBase string, caseID int64) *models.InlineKeyboardMarkup {
	if caseURLBase == "" {
		return nil
	}

	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{
					Text: "Open case",
					URL:  CaseURL(caseURLBase, caseID),
				},
			},
		},
	}
}

// CaseURL joins the base URL and the case ID
func CaseURL(base string, caseID int64) string {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + strconv.FormatInt(caseID, 10)
}
