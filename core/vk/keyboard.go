package vk

// Keyboard is the VK message keyboard payload, serialized as-is into the
// messages.send "keyboard" parameter.
type Keyboard struct {
	Inline  bool       `json:"inline"`
	Buttons [][]Button `json:"buttons"`
}

// Button is a single keyboard button.
type Button struct {
	Action ButtonAction `json:"action"`
	Color  string       `json:"color"`
}

// ButtonAction describes the action payload carried by a button press.
type ButtonAction struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
	Label   string         `json:"label"`
}

// Button colors supported by VK keyboards.
const (
	ColorPrimary   = "primary"
	ColorSecondary = "secondary"
	ColorPositive  = "positive"
)

// Payload button identifiers understood by the state machine.
const (
	BtnStart         = "start"
	BtnFutureCourses = "future_courses"
	BtnClientCourses = "client_courses"
	BtnPastCourses   = "past_courses"
	BtnAdminMsg      = "admin_msg"
	BtnSearchUs      = "search_us"
)

const menuLabel = "☰ MENU"

// GallerySentinel is the catalog record folded into the trailing menu row
// instead of getting a course row of its own.
const GallerySentinel = "Фотогалерея"

// TextButton builds a text-action button with the given payload.
func TextButton(label, color string, payload map[string]any) Button {
	return Button{
		Action: ButtonAction{Type: "text", Payload: payload, Label: label},
		Color:  color,
	}
}

// MenuKeyboard returns a keyboard with the single return-to-menu button.
func MenuKeyboard(color string, inline bool) *Keyboard {
	return &Keyboard{
		Inline: inline,
		Buttons: [][]Button{{
			TextButton(menuLabel, color, map[string]any{"button": BtnStart}),
		}},
	}
}

// MainMenuKeyboard returns the inline primary menu, one choice per row.
func MainMenuKeyboard() *Keyboard {
	choices := []struct {
		label  string
		button string
	}{
		{"Предстоящие курсы", BtnFutureCourses},
		{"Ваши курсы", BtnClientCourses},
		{"Прошедшие курсы", BtnPastCourses},
		{"Написать администратору", BtnAdminMsg},
		{"Как нас найти", BtnSearchUs},
	}
	rows := make([][]Button, 0, len(choices))
	for _, c := range choices {
		rows = append(rows, []Button{
			TextButton(c.label, ColorSecondary, map[string]any{"button": c.button}),
		})
	}
	return &Keyboard{Inline: true, Buttons: rows}
}

// CourseRef is the minimal course projection keyboards are built from.
type CourseRef struct {
	ID   int64
	Name string
}

// CourseKeyboard builds an inline keyboard with one row per course plus a
// trailing menu row. A gallery sentinel record is folded into the trailing
// row as an extra button rather than getting its own row. The back payload
// marks which menu choice produced the listing.
func CourseKeyboard(courses []CourseRef, back string) *Keyboard {
	var gallery map[string]any
	rows := make([][]Button, 0, len(courses)+1)
	for _, course := range courses {
		if course.Name == GallerySentinel {
			gallery = map[string]any{"course_pk": course.ID, "button": back}
			continue
		}
		rows = append(rows, []Button{
			TextButton(course.Name, ColorSecondary, map[string]any{"course_pk": course.ID, "button": back}),
		})
	}

	menuRow := []Button{
		TextButton(menuLabel, ColorPrimary, map[string]any{"button": BtnStart}),
	}
	if gallery != nil {
		menuRow = append(menuRow, TextButton("ГАЛЕРЕЯ", ColorPrimary, gallery))
	}
	rows = append(rows, menuRow)

	return &Keyboard{Inline: true, Buttons: rows}
}
