package image

import "fmt"

// transformPrompt is the instruction for single-step renders.
func transformPrompt(roomType, lighting string) string {
	return fmt.Sprintf(
		"Transform this collage image into a photorealistic interior design visualization of a %s with %s lighting. "+
			"Maintain the key design elements, patterns, and style from the collage but render it as a realistic 3D scene.",
		roomType, lighting)
}

// removeBackgroundPrompt asks for the furnished room to be emptied while
// keeping the architecture intact.
func removeBackgroundPrompt(roomType string) string {
	return fmt.Sprintf(
		"Remove all furniture, decor, and loose objects from this photo of a %s. "+
			"Keep the walls, floor, ceiling, windows, and built-in fixtures exactly as they are, "+
			"producing a clean empty room from the same camera angle.", roomType)
}

// composePrompt asks for the collage furnishings to be staged into the
// empty room.
func composePrompt(roomType, lighting string) string {
	return fmt.Sprintf(
		"Furnish this empty %s using the furniture, materials, and style shown in the attached reference collage. "+
			"Render a photorealistic scene with %s lighting, keeping the room's architecture and perspective unchanged.",
		roomType, lighting)
}
