package domain

import "time"

// QuestionType classifies how a question is answered.
type QuestionType string

const (
	TypeMath           QuestionType = "math"
	TypeText           QuestionType = "text"
	TypeMultipleChoice QuestionType = "multiple-choice"
)

// Difficulty is the advertised difficulty of a question or set.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// VerificationStatus tracks an answer through its verification lifecycle:
// pending -> verifying -> correct | incorrect. The terminal states never
// transition again; a resubmission replaces the answer wholesale.
type VerificationStatus string

const (
	StatusPending   VerificationStatus = "pending"
	StatusVerifying VerificationStatus = "verifying"
	StatusCorrect   VerificationStatus = "correct"
	StatusIncorrect VerificationStatus = "incorrect"
)

// Terminal reports whether no further transition can occur.
func (s VerificationStatus) Terminal() bool {
	return s == StatusCorrect || s == StatusIncorrect
}

// QuestionSet is read-only metadata about a collection of questions.
type QuestionSet struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Subject        string     `json:"subject"`
	Grade          string     `json:"grade"`
	TotalQuestions int        `json:"totalQuestions"`
	EstimatedTime  int        `json:"estimatedTime"` // minutes
	Difficulty     Difficulty `json:"difficulty"`
	Icon           string     `json:"icon,omitempty"`
	Color          string     `json:"color,omitempty"`
}

// Question is immutable content sourced from the question bank.
type Question struct {
	ID            string       `json:"id"`
	SetID         string       `json:"setId"`
	Order         int          `json:"order"`
	Text          string       `json:"text"`
	Type          QuestionType `json:"type"`
	Difficulty    Difficulty   `json:"difficulty"`
	Points        int          `json:"points"`
	ImageURL      string       `json:"imageUrl,omitempty"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correctAnswer,omitempty"`
}

// Point is a single sampled pen position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Stroke is one continuous pen gesture, kept as opaque replay data.
type Stroke struct {
	Points []Point `json:"points"`
	Color  string  `json:"color"`
	Width  float64 `json:"width"`
}

// Answer is one submission for one question, with its verification lifecycle.
type Answer struct {
	QuestionID         string             `json:"questionId"`
	UserAnswer         string             `json:"userAnswer"` // rendered image artifact (data URL)
	Strokes            []Stroke           `json:"strokes,omitempty"`
	SubmittedAt        time.Time          `json:"submittedAt"`
	VerificationStatus VerificationStatus `json:"verificationStatus"`
	Feedback           string             `json:"feedback,omitempty"`
	AttemptNumber      int                `json:"attemptNumber"`
}

// Progress is the mutable record of one attempt at one question set.
// At most one answer exists per question ID; resubmission replaces.
type Progress struct {
	SetID                string     `json:"setId"`
	UserID               string     `json:"userId,omitempty"`
	CurrentQuestionIndex int        `json:"currentQuestionIndex"`
	Answers              []Answer   `json:"answers"`
	StartedAt            time.Time  `json:"startedAt"`
	CompletedAt          *time.Time `json:"completedAt,omitempty"`
	Score                *int       `json:"score,omitempty"`
	TotalPoints          *int       `json:"totalPoints,omitempty"`
}

// FindAnswer returns the live answer for a question, or nil.
func (p *Progress) FindAnswer(questionID string) *Answer {
	for i := range p.Answers {
		if p.Answers[i].QuestionID == questionID {
			return &p.Answers[i]
		}
	}
	return nil
}

// UpsertAnswer replaces the answer for its question ID, or appends it.
func (p *Progress) UpsertAnswer(answer Answer) {
	for i := range p.Answers {
		if p.Answers[i].QuestionID == answer.QuestionID {
			p.Answers[i] = answer
			return
		}
	}
	p.Answers = append(p.Answers, answer)
}

// HasUnresolved reports whether any answer is still pending or verifying.
func (p *Progress) HasUnresolved() bool {
	for i := range p.Answers {
		if !p.Answers[i].VerificationStatus.Terminal() {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate independently.
func (p *Progress) Clone() Progress {
	out := *p
	out.Answers = make([]Answer, len(p.Answers))
	copy(out.Answers, p.Answers)
	for i := range out.Answers {
		out.Answers[i].Strokes = cloneStrokes(out.Answers[i].Strokes)
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		out.CompletedAt = &t
	}
	if p.Score != nil {
		v := *p.Score
		out.Score = &v
	}
	if p.TotalPoints != nil {
		v := *p.TotalPoints
		out.TotalPoints = &v
	}
	return out
}

func cloneStrokes(strokes []Stroke) []Stroke {
	if strokes == nil {
		return nil
	}
	out := make([]Stroke, len(strokes))
	copy(out, strokes)
	for i := range out {
		if out[i].Points == nil {
			continue
		}
		points := make([]Point, len(out[i].Points))
		copy(points, out[i].Points)
		out[i].Points = points
	}
	return out
}

// QuestionSetProgress is the rollup written once a Progress fully resolves.
type QuestionSetProgress struct {
	SetID           string     `json:"setId"`
	Completed       bool       `json:"completed"`
	HighScore       int        `json:"highScore"`
	LastAttemptDate *time.Time `json:"lastAttemptDate,omitempty"`
	TotalAttempts   int        `json:"totalAttempts"`
}
