package session

import "github.com/MikeyZhang75/AI-Tutor/internal/domain"

// State is the authoritative in-memory projection of one learner session.
// All UI reads derive from it; all mutation flows through Reduce.
type State struct {
	CurrentSet           *domain.QuestionSet `json:"currentSet"`
	CurrentQuestions     []domain.Question   `json:"currentQuestions"`
	CurrentProgress      *domain.Progress    `json:"currentProgress"`
	CurrentQuestionIndex int                 `json:"currentQuestionIndex"`
	IsLoading            bool                `json:"isLoading"`
	IsExiting            bool                `json:"isExiting"`
	Error                string              `json:"error,omitempty"`
}

// ActionType enumerates every state transition a session can perform.
type ActionType int

const (
	StartLoading ActionType = iota
	FinishLoading
	SetError
	ClearError
	SetQuestionSet // resets the index to 0
	SetProgress
	SetQuestionIndex
	AddOrUpdateAnswer // replace-by-questionID upsert
	SetExiting
	ResetSession // clears everything except the exiting flag
)

// Action is a tagged variant; Type selects which payload fields apply.
type Action struct {
	Type      ActionType
	Err       string
	Set       *domain.QuestionSet
	Questions []domain.Question
	Progress  *domain.Progress
	Index     int
	Answer    *domain.Answer
	Exiting   bool
}

// InitialState returns the empty session state.
func InitialState() State {
	return State{CurrentQuestions: []domain.Question{}}
}

// Reduce produces the next state from the previous state and an action.
// It is pure: no side effects, and the input state is never mutated.
func Reduce(state State, action Action) State {
	switch action.Type {
	case StartLoading:
		state.IsLoading = true
		state.Error = ""
		return state

	case FinishLoading:
		state.IsLoading = false
		return state

	case SetError:
		state.Error = action.Err
		state.IsLoading = false
		return state

	case ClearError:
		state.Error = ""
		return state

	case SetQuestionSet:
		state.CurrentSet = action.Set
		state.CurrentQuestions = action.Questions
		state.CurrentQuestionIndex = 0
		return state

	case SetProgress:
		if action.Progress == nil {
			state.CurrentProgress = nil
			return state
		}
		progress := action.Progress.Clone()
		state.CurrentProgress = &progress
		return state

	case SetQuestionIndex:
		state.CurrentQuestionIndex = action.Index
		return state

	case AddOrUpdateAnswer:
		if state.CurrentProgress == nil || action.Answer == nil {
			return state
		}
		progress := state.CurrentProgress.Clone()
		progress.UpsertAnswer(*action.Answer)
		state.CurrentProgress = &progress
		return state

	case SetExiting:
		state.IsExiting = action.Exiting
		return state

	case ResetSession:
		next := InitialState()
		next.IsExiting = state.IsExiting
		return next

	default:
		return state
	}
}
