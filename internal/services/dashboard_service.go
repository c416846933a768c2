package services

import (
	"database/sql"
	"math"

	"github.com/isdelr/qb-categorizer-be/internal/models"
)

// minutesSavedPerReview approximates manual categorization effort per transaction.
const minutesSavedPerReview = 2

// DashboardServiceProvider defines the interface for dashboard statistics.
type DashboardServiceProvider interface {
	GetDashboardStats(userID string) (models.DashboardStats, error)
}

// DashboardService aggregates a user's workload across clients.
type DashboardService struct {
	db *sql.DB
}

// NewDashboardService creates a new DashboardService.
func NewDashboardService(db *sql.DB) *DashboardService {
	return &DashboardService{db: db}
}

// GetDashboardStats returns client, backlog, time saved and accuracy figures for a user.
func (s *DashboardService) GetDashboardStats(userID string) (models.DashboardStats, error) {
	var stats models.DashboardStats
	var reviewed int
	var accuracy sql.NullFloat64

	err := s.db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM clients WHERE user_id = ?),
			(SELECT COUNT(*) FROM transactions t JOIN clients c ON c.id = t.client_id WHERE c.user_id = ? AND t.status = 'PENDING'),
			(SELECT COUNT(*) FROM transactions t JOIN clients c ON c.id = t.client_id WHERE c.user_id = ? AND t.reviewed_at IS NOT NULL),
			(SELECT AVG(l.was_correct) FROM learning_examples l JOIN clients c ON c.id = l.client_id WHERE c.user_id = ?)`,
		userID, userID, userID, userID,
	).Scan(&stats.TotalClients, &stats.PendingTransactions, &reviewed, &accuracy)
	if err != nil {
		return models.DashboardStats{}, err
	}

	stats.TimeSavedHours = math.Round(float64(reviewed*minutesSavedPerReview)/60*10) / 10
	if accuracy.Valid {
		stats.OverallAccuracy = math.Round(accuracy.Float64*1000) / 10
	}
	return stats, nil
}
