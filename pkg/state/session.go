package state

import (
	"encoding/json"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/story-weaver/pkg/chat"
	"github.com/jwebster45206/story-weaver/pkg/genre"
)

const (
	// MaxRecentLocations bounds the recent location keyword window.
	MaxRecentLocations = 5

	// DefaultMaxCompanionThreshold is the upper bound of the companion
	// appearance threshold draw. The lower bound is always 1.
	DefaultMaxCompanionThreshold = 5

	// RecentMessagesForClassifier is how much conversation the classifier sees.
	RecentMessagesForClassifier = 3
)

// Companion is the persistent secondary character of an adventure.
type Companion struct {
	Name             string `json:"name"`
	ShortDescription string `json:"short_description"`
	Personality      string `json:"personality,omitempty"`
	SpeakingStyle    string `json:"speaking_style,omitempty"`
	VoiceID          string `json:"voice_id,omitempty"`
}

// Session is the mutable record of one adventure. Mutations go through its
// methods so that the chat log stays append-only, the keyword window stays
// bounded and the turn counter only moves forward.
type Session struct {
	ID    uuid.UUID   `json:"id"`
	Genre genre.Genre `json:"genre"`
	Title string      `json:"title,omitempty"`

	WorldSetting            string `json:"world_setting,omitempty"`
	CurrentSceneDescription string `json:"current_scene_description,omitempty"`

	// Companion is set iff CompanionPresent.
	CompanionPresent bool       `json:"companion_present"`
	Companion        *Companion `json:"companion,omitempty"`
	// PlannedCompanion is generated at start and revealed on introduction.
	PlannedCompanion *Companion `json:"planned_companion,omitempty"`

	RecentLocationKeywords       []string `json:"recent_location_keywords"`
	UserTurnCount                int      `json:"user_turn_count"`
	CompanionAppearanceThreshold int      `json:"companion_appearance_threshold"`

	ChatLog       []chat.Message `json:"chat_log"`
	NextMessageID int            `json:"next_message_id"`

	NarratorVoice string `json:"narrator_voice,omitempty"`
	Speaking      bool   `json:"speaking"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New starts a session for g, drawing the companion appearance threshold
// uniformly from [1, maxThreshold] using rng. maxThreshold is clamped to
// [1, DefaultMaxCompanionThreshold].
func New(g genre.Genre, rng *rand.Rand, maxThreshold int) *Session {
	if maxThreshold < 1 || maxThreshold > DefaultMaxCompanionThreshold {
		maxThreshold = DefaultMaxCompanionThreshold
	}
	now := time.Now()
	return &Session{
		ID:                           uuid.New(),
		Genre:                        g,
		RecentLocationKeywords:       make([]string, 0, MaxRecentLocations),
		CompanionAppearanceThreshold: 1 + rng.Intn(maxThreshold),
		ChatLog:                      make([]chat.Message, 0),
		NextMessageID:                1,
		CreatedAt:                    now,
		UpdatedAt:                    now,
	}
}

// BeginTurn records one more resolved user utterance and returns the new count.
func (s *Session) BeginTurn() int {
	s.UserTurnCount++
	return s.UserTurnCount
}

// CompanionDue reports whether the threshold forces a companion introduction.
func (s *Session) CompanionDue() bool {
	return !s.CompanionPresent && s.UserTurnCount >= s.CompanionAppearanceThreshold
}

// AppendMessage adds a message to the chat log with the next id.
func (s *Session) AppendMessage(sender chat.Sender, text, imageURL string, narrating bool) chat.Message {
	if s.NextMessageID < 1 {
		s.NextMessageID = 1
	}
	if n := len(s.ChatLog); n > 0 && s.ChatLog[n-1].ID >= s.NextMessageID {
		s.NextMessageID = s.ChatLog[n-1].ID + 1
	}
	msg := chat.Message{
		ID:          s.NextMessageID,
		Sender:      sender,
		Text:        text,
		ImageURL:    imageURL,
		IsNarrating: narrating,
	}
	s.NextMessageID++
	s.ChatLog = append(s.ChatLog, msg)
	return msg
}

// SetNarrating flips the narrating flag of message id. It reports whether the
// message exists.
func (s *Session) SetNarrating(id int, narrating bool) bool {
	for i := len(s.ChatLog) - 1; i >= 0; i-- {
		if s.ChatLog[i].ID == id {
			s.ChatLog[i].IsNarrating = narrating
			return true
		}
	}
	return false
}

// ClearNarrating clears every narrating flag, used when playback is stopped.
func (s *Session) ClearNarrating() {
	for i := range s.ChatLog {
		s.ChatLog[i].IsNarrating = false
	}
	s.Speaking = false
}

// IntroduceCompanion makes c present. It only takes effect once per session;
// later calls return false and leave the existing companion alone.
func (s *Session) IntroduceCompanion(c Companion) bool {
	if s.CompanionPresent {
		return false
	}
	s.CompanionPresent = true
	s.Companion = &c
	return true
}

// SetWorldSetting records the initial premise. It is only ever set once.
func (s *Session) SetWorldSetting(setting string) {
	if s.WorldSetting != "" {
		return
	}
	s.WorldSetting = strings.TrimSpace(setting)
}

// SetScene replaces the current scene description.
func (s *Session) SetScene(description string) {
	s.CurrentSceneDescription = strings.TrimSpace(description)
}

// RememberLocations folds keywords into the recent location window. Repeats
// move to the most recent end; the oldest entries fall off past the bound.
func (s *Session) RememberLocations(keywords []string) {
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		for i, existing := range s.RecentLocationKeywords {
			if existing == kw {
				s.RecentLocationKeywords = append(s.RecentLocationKeywords[:i], s.RecentLocationKeywords[i+1:]...)
				break
			}
		}
		s.RecentLocationKeywords = append(s.RecentLocationKeywords, kw)
	}
	if over := len(s.RecentLocationKeywords) - MaxRecentLocations; over > 0 {
		s.RecentLocationKeywords = append([]string(nil), s.RecentLocationKeywords[over:]...)
	}
}

// CompanionName returns the present companion's name or "".
func (s *Session) CompanionName() string {
	if s.Companion == nil {
		return ""
	}
	return s.Companion.Name
}

// View is a read-only snapshot of the state the classifier reasons over.
type View struct {
	Genre                   genre.Genre
	WorldSetting            string
	CurrentSceneDescription string
	CompanionPresent        bool
	CompanionName           string
	CompanionDescription    string
	RecentMessages          []chat.Message
	RecentLocationKeywords  []string
	UserTurnCount           int
}

// View copies out the classifier's view of the session.
func (s *Session) View() View {
	v := View{
		Genre:                   s.Genre,
		WorldSetting:            s.WorldSetting,
		CurrentSceneDescription: s.CurrentSceneDescription,
		CompanionPresent:        s.CompanionPresent,
		RecentMessages:          append([]chat.Message(nil), chat.Tail(s.ChatLog, RecentMessagesForClassifier)...),
		RecentLocationKeywords:  append([]string(nil), s.RecentLocationKeywords...),
		UserTurnCount:           s.UserTurnCount,
	}
	if s.Companion != nil {
		v.CompanionName = s.Companion.Name
		v.CompanionDescription = s.Companion.ShortDescription
	}
	return v
}

// DeepCopy returns an independent copy of the session.
func (s *Session) DeepCopy() (*Session, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var cp Session
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}
