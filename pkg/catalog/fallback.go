package catalog

import "github.com/jajabor-ai/tutor/pkg/models"

// Built-in data used when the catalog database is empty or unreachable.
var (
	fallbackSubjects = []models.Subject{
		{ID: "math", Name: "math", DisplayName: "📐 গণিত (Mathematics)"},
		{ID: "science", Name: "science", DisplayName: "🔬 সাধাৰণ বিজ্ঞান (General Science)"},
		{ID: "social", Name: "social", DisplayName: "🌍 সমাজ বিজ্ঞান (Social Science)"},
		{ID: "english", Name: "english", DisplayName: "📘 ইংৰাজী (English)"},
		{ID: "assamese", Name: "assamese", DisplayName: "📕 অসমীয়া (Assamese)"},
		{ID: "hindi", Name: "hindi", DisplayName: "📗 হিন্দী (Hindi)"},
	}

	fallbackChapters = []models.Chapter{
		{ID: "math_1", SubjectID: "math", Name: "real_numbers", DisplayName: "বাস্তৱ সংখ্যা (Real Numbers)"},
		{ID: "math_2", SubjectID: "math", Name: "polynomials", DisplayName: "বহুপদ (Polynomials)"},
	}

	fallbackQuestions = []models.Question{
		{ID: "1", ChapterID: "math_1", Question: "ইউক্লিডৰ বিভাজন প্ৰমেয়িকাৰ দ্বাৰা 135 আৰু 225 ৰ গঃসাঃউঃ নিৰ্ণয় কৰা।"},
		{ID: "2", ChapterID: "math_1", Question: `প্রমাণ কৰা যে $\sqrt{2}$ এটা অমূলদ সংখ্যা।`},
		{ID: "3", ChapterID: "math_2", Question: "যদি বহুপদ $p(x) = 2x^2 - 3x + 1$ হয়, তেন্তে $p(2)$ ৰ মান নিৰ্ণয় কৰা।"},
	}
)

// Fallback returns copies of the built-in subjects, chapters and questions.
func Fallback() ([]models.Subject, []models.Chapter, []models.Question) {
	return append([]models.Subject(nil), fallbackSubjects...),
		append([]models.Chapter(nil), fallbackChapters...),
		append([]models.Question(nil), fallbackQuestions...)
}
