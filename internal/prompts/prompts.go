package prompts

// ============================================================================
// Alt-text prompts (Vision Language Model)
// ============================================================================

// AltTextSystemPrompt defines the role and rules for alt-text generation.
const AltTextSystemPrompt = `You write alternative text for photos shared on a photo community site.
Alt-text is read aloud by screen readers to people who cannot see the image.

Rules:
- One plain sentence, at most 20 words.
- Describe the main subject, what it is doing and the setting.
- Mention legible text in the image only if it matters.
- Do not start with "Image of", "Photo of" or "Picture of".
- No hashtags, emojis, quotes or speculation about feelings.`

// AltTextUserPrompt is sent with the image.
const AltTextUserPrompt = `Write the alt-text for this photo.`

// AltTextPromptWithTags adds detected object labels as hints. The model may ignore them.
const AltTextPromptWithTags = `Write the alt-text for this photo. Objects detected in it: %s.`
