package dispatch

import "fmt"

// Reply copy. All user-facing text lives here so handlers stay about
// flow, not wording.

const (
	msgGreetingAnon = "Привет! Я бот фотошколы. Выберите, что вас интересует:"

	msgMenuPrompt = "Выберите, что вас интересует:"

	msgAdminPrompt = "Напишите ваше сообщение, и администратор ответит вам в этом диалоге."
	msgSearchUs    = "Мы находимся по адресу: г. Москва, ул. Фотографов, д. 1.\nТелефон: +7 (900) 000-00-00."

	msgCourseNotFound = "Такого курса больше нет. Вернитесь в меню и выберите другой."

	msgMoreCourses = "А также:"
)

func msgGreeting(firstName string) string {
	if firstName == "" {
		return msgGreetingAnon
	}
	return fmt.Sprintf("Привет, %s! Я бот фотошколы. Выберите, что вас интересует:", firstName)
}

// listCopy is the per-roster reply wording: the first-page header, the
// header for every following page, and the empty-roster reply.
type listCopy struct {
	first string
	more  string
	empty string
}

var (
	futureCopy = listCopy{
		first: "Вот курсы, которые скоро стартуют:",
		more:  msgMoreCourses,
		empty: "Пока ни одного курса не запланировано. Загляните позже!",
	}
	clientCopy = listCopy{
		first: "Ваши курсы:",
		more:  msgMoreCourses,
		empty: "Вы пока не записаны ни на один курс.",
	}
	pastCopy = listCopy{
		first: "Курсы, которые уже прошли:",
		more:  msgMoreCourses,
		empty: "Завершённых курсов пока нет.",
	}
)
