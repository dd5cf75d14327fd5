package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MikeyZhang75/AI-Tutor/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionBank loads question-set content from Postgres.
type QuestionBank struct {
	pool *pgxpool.Pool
}

func NewQuestionBank(pool *pgxpool.Pool) *QuestionBank {
	return &QuestionBank{pool: pool}
}

func (b *QuestionBank) ListQuestionSets(ctx context.Context) ([]domain.QuestionSet, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT id, title, description, subject, grade, total_questions,
		       estimated_time, difficulty, icon, color
		FROM question_set
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list question sets: %w", err)
	}
	defer rows.Close()

	var sets []domain.QuestionSet
	for rows.Next() {
		var set domain.QuestionSet
		var icon, color *string
		if err := rows.Scan(&set.ID, &set.Title, &set.Description, &set.Subject,
			&set.Grade, &set.TotalQuestions, &set.EstimatedTime, &set.Difficulty,
			&icon, &color); err != nil {
			return nil, fmt.Errorf("scan question set: %w", err)
		}
		if icon != nil {
			set.Icon = *icon
		}
		if color != nil {
			set.Color = *color
		}
		sets = append(sets, set)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list question sets: %w", err)
	}
	return sets, nil
}

func (b *QuestionBank) ListQuestions(ctx context.Context, setID string) ([]domain.Question, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT id, set_id, "order", text, type, difficulty, points,
		       image_url, options, correct_answer
		FROM question
		WHERE set_id = $1
		ORDER BY "order"`, setID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var q domain.Question
		var imageURL, correctAnswer *string
		var options []byte
		if err := rows.Scan(&q.ID, &q.SetID, &q.Order, &q.Text, &q.Type,
			&q.Difficulty, &q.Points, &imageURL, &options, &correctAnswer); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if imageURL != nil {
			q.ImageURL = *imageURL
		}
		if correctAnswer != nil {
			q.CorrectAnswer = *correctAnswer
		}
		if len(options) > 0 {
			if err := json.Unmarshal(options, &q.Options); err != nil {
				return nil, fmt.Errorf("unmarshal options for question %s: %w", q.ID, err)
			}
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return questions, nil
}
