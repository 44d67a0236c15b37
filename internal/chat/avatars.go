package chat

// Avatars maps the selectable avatar names to their display glyphs.
// Chosen once at registration or guest setup.
var Avatars = map[string]string{
	"Wave":    "🌊",
	"Star":    "⭐",
	"Quill":   "✒️",
	"Pixel":   "👾",
	"Anchor":  "⚓",
	"Compass": "🧭",
	"Atom":    "⚛️",
	"Sprout":  "🌱",
}

// adminAvatar marks the seeded default admin account.
const adminAvatar = "👑"

func avatarGlyph(name string) (string, bool) {
	glyph, ok := Avatars[name]
	return glyph, ok
}
