package repository

// History joins the session and quiz tables the achievement engine reads.
type History struct {
	*StudySessionRepo
	*QuizRepo
}

func NewHistory(sessions *StudySessionRepo, quizzes *QuizRepo) *History {
	return &History{StudySessionRepo: sessions, QuizRepo: quizzes}
}
