package llm

// Part is one element of a multimodal prompt: either text or an image
type Part struct {
	Text     string
	Image    []byte
	MIMEType string
}

// TextPart builds a text element
func TextPart(text string) Part {
	return Part{Text: text}
}

// ImagePart builds a PNG image element
func ImagePart(png []byte) Part {
	return Part{Image: png, MIMEType: "image/png"}
}

// IsImage reports whether the part carries image bytes
func (p Part) IsImage() bool {
	return p.Image != nil
}

// Format returns the short image format ("png", "jpeg") used by some SDKs
func (p Part) Format() string {
	switch p.MIMEType {
	case "image/jpeg":
		return "jpeg"
	case "image/gif":
		return "gif"
	default:
		return "png"
	}
}
