// Package prompt holds the instruction templates for the two describe
// calls and the final generation call. Builders are pure: identical inputs
// always produce the identical string.
package prompt

import "fmt"

// UserDescription instructs the model to capture everything about the
// subject except the hair, so the generation step stays hair-agnostic.
func UserDescription() string {
	return "Describe this person's appearance in detail, including face shape, " +
		"skin tone, eye color, body type, pose, clothing, background, " +
		"but do not describe the hair. Be precise for realistic recreation."
}

// HairstyleDescription instructs the model to capture the hairstyle alone,
// never the subject wearing it.
func HairstyleDescription() string {
	return "Describe this hairstyle in detail, including length, texture, " +
		"style, layers, volume, and how it sits on the head. " +
		"Be precise for accurate application."
}

// Generation composes the final synthesis instruction from both
// descriptions, the validated hex color, and the camera angle.
func Generation(userDesc, hairstyleDesc, color, angle string) string {
	return fmt.Sprintf(
		"Generate a realistic image of a person with %s, applying the hairstyle: %s in color %s. "+
			"Make the hairstyle fit naturally to the head shape. "+
			"Only change the hair; keep the rest authentic. "+
			"Slight improvements to overall look. Blur background 15-20%%. "+
			"Improve lighting subtly. View from %s. "+
			"High quality, photorealistic, no animation.",
		userDesc, hairstyleDesc, color, angle,
	)
}
