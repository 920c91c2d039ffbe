package content

import "math/rand/v2"

var defaultQuotes = []string{
	"The only way to do great work is to love what you do. - Steve Jobs",
	"Innovation distinguishes between a leader and a follower. - Steve Jobs",
	"Life is what happens to you while you're busy making other plans. - John Lennon",
	"The future belongs to those who believe in the beauty of their dreams. - Eleanor Roosevelt",
	"It is during our darkest moments that we must focus to see the light. - Aristotle",
	"The way to get started is to quit talking and begin doing. - Walt Disney",
	"Spread love everywhere you go. Let no one ever come to you without leaving happier. - Mother Teresa",
	"Do one thing every day that scares you. - Eleanor Roosevelt",
	"The only impossible journey is the one you never begin. - Tony Robbins",
	"Don't judge each day by the harvest you reap but by the seeds that you plant. - Robert Louis Stevenson",
	"The purpose of our lives is to be happy. - Dalai Lama",
	"Life is a long lesson in humility. - James M. Barrie",
}

// Service hands out quotes to signed-in users.
type Service struct {
	quotes []string
	pick   func(n int) int
}

func NewService() *Service {
	return &Service{quotes: defaultQuotes, pick: rand.IntN}
}

func (s *Service) Quote() string {
	return s.quotes[s.pick(len(s.quotes))]
}

func (s *Service) Quotes() []string {
	return append([]string(nil), s.quotes...)
}
