package transform

import (
	"errors"
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Ghiblit/app/repository"
)

const DefaultStyle = "ghibli"

var builtinPrompts = map[string]string{
	"ghibli":     "Transform this image into Studio Ghibli style from Hayao Miyazaki's films.",
	"onepiece":   "Transform this image into One Piece anime style in Eiichiro Oda's art style. Match each person to a Straw Hat crew member by face and body structure instead of making everyone the main character.",
	"cyberpunk":  "Transform this image into Cyberpunk 2077 game style.",
	"shinchan":   "Transform this image into Crayon Shin-chan style.",
	"solo":       "Transform this image into Solo Leveling manhwa style. Keep each person's face and body structure and add the shadow aura of the main character to the background.",
	"pixar":      "Transform this image into Pixar animation style.",
	"dragonball": "Transform this image into Dragon Ball anime style with Super Saiyan hair where it suits the person, keeping their faces recognisable.",
}

// Styles returns the supported style keys in stable order.
func Styles() []string {
	out := make([]string, 0, len(builtinPrompts))
	for k := range builtinPrompts {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NormalizeStyle maps unknown or empty styles to DefaultStyle.
func NormalizeStyle(style string) string {
	style = strings.ToLower(strings.TrimSpace(style))
	if _, ok := builtinPrompts[style]; ok {
		return style
	}
	if style != "" {
		log.Warnf("[Transform] Unsupported style %q, falling back to %s", style, DefaultStyle)
	}
	return DefaultStyle
}

// PromptFor returns the active stored prompt for style, or the built-in one.
func PromptFor(prompts repository.StylePromptRepository, style string) string {
	if prompts != nil {
		p, err := prompts.GetActive(style)
		switch {
		case err == nil && strings.TrimSpace(p.Prompt) != "":
			return p.Prompt
		case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
			log.Warnf("[Transform] Loading prompt override for %s failed: %v", style, err)
		}
	}
	return builtinPrompts[style]
}
