// internal/service/template_service.go
package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/unclebandit/whatsapp-campaigns/internal/model"
)

var placeholder = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// TemplateVars builds the substitution table for a recipient. Built-in keys come
// first and recipient data is layered on top, so a data key named like a built-in wins.
func TemplateVars(r model.Recipient) map[string]string {
	vars := map[string]string{
		"name":     r.Name,
		"nome":     r.Name,
		"phone":    r.Phone,
		"telefone": r.Phone,
		"email":    r.Email,
	}
	for k, v := range r.Data {
		if v == nil {
			vars[k] = ""
			continue
		}
		vars[k] = fmt.Sprint(v)
	}
	return vars
}

// RenderTemplate replaces every {{key}} found in vars. Unknown placeholders are left untouched.
func RenderTemplate(template string, vars map[string]string) string {
	if !strings.Contains(template, "{{") {
		return template
	}
	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		key := placeholder.FindStringSubmatch(m)[1]
		if v, ok := vars[key]; ok {
			return v
		}
		return m
	})
}

// RenderedParts is what a campaign sends to one recipient, in order.
type RenderedParts struct {
	Content  string `json:"content"`
	ImageURL string `json:"image_url,omitempty"`
	Content2 string `json:"content2"`
}

func RenderCampaign(c *model.Campaign, r model.Recipient) RenderedParts {
	vars := TemplateVars(r)
	return RenderedParts{
		Content:  RenderTemplate(c.Content, vars),
		ImageURL: c.ImageURL,
		Content2: RenderTemplate(c.Content2, vars),
	}
}
