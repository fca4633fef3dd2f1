package assets

import (
	"context"
	"strings"

	"github.com/lordpython/aisoulstudio/production"
)

// SfxLibrary suggests ambient tracks for each scene of a plan.
type SfxLibrary interface {
	SuggestTracks(ctx context.Context, plan *production.ContentPlan, mood string) (*production.SfxPlan, error)
}

// ambientTrack is one catalog entry of the built-in library.
type ambientTrack struct {
	ID          string
	Description string
	Keywords    []string
}

// builtinTracks is the ambient catalog. Matching is first keyword hit over
// the scene's visual description, narration, and emotional tone.
var builtinTracks = []ambientTrack{
	{ID: "amb-ocean", Description: "Ocean waves and deep water", Keywords: []string{"ocean", "sea", "underwater", "wave", "deep-sea", "marine"}},
	{ID: "amb-forest", Description: "Forest birds and rustling leaves", Keywords: []string{"forest", "tree", "jungle", "bird", "woods", "nature"}},
	{ID: "amb-city", Description: "City traffic and crowd murmur", Keywords: []string{"city", "street", "traffic", "urban", "crowd", "downtown"}},
	{ID: "amb-rain", Description: "Steady rain with distant thunder", Keywords: []string{"rain", "storm", "thunder", "wet", "drizzle"}},
	{ID: "amb-wind", Description: "Open wind over plains", Keywords: []string{"wind", "desert", "mountain", "plain", "open", "vast"}},
	{ID: "amb-fire", Description: "Crackling fire", Keywords: []string{"fire", "flame", "campfire", "burn", "ember"}},
	{ID: "amb-space", Description: "Low cosmic drone", Keywords: []string{"space", "cosmic", "galaxy", "star", "orbit", "void"}},
	{ID: "amb-machine", Description: "Machinery hum and servo whirs", Keywords: []string{"machine", "factory", "robot", "engine", "lab", "tech"}},
	{ID: "amb-night", Description: "Crickets and still night air", Keywords: []string{"night", "dark", "moon", "quiet", "evening"}},
	{ID: "amb-room", Description: "Neutral room tone", Keywords: nil},
}

// moodMusic maps a requested mood to a background-music selection.
var moodMusic = map[string]production.MusicTrack{
	"upbeat":    {URL: "library://music/upbeat-drive", Title: "Upbeat Drive", Volume: 0.3},
	"calm":      {URL: "library://music/calm-currents", Title: "Calm Currents", Volume: 0.25},
	"epic":      {URL: "library://music/rising-tide", Title: "Rising Tide", Volume: 0.35},
	"tense":     {URL: "library://music/undertow", Title: "Undertow", Volume: 0.3},
	"playful":   {URL: "library://music/skipping-stones", Title: "Skipping Stones", Volume: 0.3},
	"somber":    {URL: "library://music/low-light", Title: "Low Light", Volume: 0.25},
	"neutral":   {URL: "library://music/backdrop", Title: "Backdrop", Volume: 0.25},
	"cinematic": {URL: "library://music/wide-frame", Title: "Wide Frame", Volume: 0.3},
}

// CatalogSfxLibrary matches scenes against the built-in ambient catalog.
// Matching is deterministic: the first track whose keywords hit the scene
// text wins, and scenes with no hit get the neutral room tone.
type CatalogSfxLibrary struct{}

// NewCatalogSfxLibrary returns the built-in ambient library.
func NewCatalogSfxLibrary() *CatalogSfxLibrary {
	return &CatalogSfxLibrary{}
}

// SuggestTracks builds an SfxPlan with one suggestion per scene and an
// optional mood-driven music selection.
func (l *CatalogSfxLibrary) SuggestTracks(_ context.Context, plan *production.ContentPlan, mood string) (*production.SfxPlan, error) {
	sfx := &production.SfxPlan{}
	for _, scene := range plan.Scenes {
		track := matchTrack(scene)
		sfx.Scenes = append(sfx.Scenes, production.SceneSfx{
			SceneID:     scene.ID,
			TrackID:     track.ID,
			TrackURL:    "library://sfx/" + track.ID,
			Description: track.Description,
			Volume:      0.2,
		})
	}

	if mood != "" {
		if music, ok := moodMusic[strings.ToLower(mood)]; ok {
			sfx.Music = &music
		}
	}
	return sfx, nil
}

func matchTrack(scene production.Scene) ambientTrack {
	text := strings.ToLower(scene.VisualDesc + " " + scene.NarrationScript + " " + scene.EmotionalTone + " " + scene.Name)
	for _, track := range builtinTracks {
		for _, kw := range track.Keywords {
			if strings.Contains(text, kw) {
				return track
			}
		}
	}
	// Last catalog entry is the keyword-less neutral fallback.
	return builtinTracks[len(builtinTracks)-1]
}
