package vk

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMainMenuKeyboardLayout(t *testing.T) {
	kb := MainMenuKeyboard()
	require.True(t, kb.Inline)
	require.Len(t, kb.Buttons, 5)
	for _, row := range kb.Buttons {
		require.Len(t, row, 1)
		assert.Equal(t, "text", row[0].Action.Type)
		assert.Equal(t, ColorSecondary, row[0].Color)
	}
	assert.Equal(t, BtnFutureCourses, kb.Buttons[0][0].Action.Payload["button"])
	assert.Equal(t, BtnSearchUs, kb.Buttons[4][0].Action.Payload["button"])
}

func TestCourseKeyboardOneRowPerCourse(t *testing.T) {
	courses := []CourseRef{
		{ID: 1, Name: "Фотография для начинающих"},
		{ID: 2, Name: "Продвинутый курс"},
	}
	kb := CourseKeyboard(courses, BtnFutureCourses)
	// two course rows plus trailing menu row
	require.Len(t, kb.Buttons, 3)
	assert.Equal(t, "Фотография для начинающих", kb.Buttons[0][0].Action.Label)
	assert.Equal(t, int64(1), kb.Buttons[0][0].Action.Payload["course_pk"])
	assert.Equal(t, BtnFutureCourses, kb.Buttons[0][0].Action.Payload["button"])

	menuRow := kb.Buttons[2]
	require.Len(t, menuRow, 1)
	assert.Equal(t, BtnStart, menuRow[0].Action.Payload["button"])
	assert.Equal(t, ColorPrimary, menuRow[0].Color)
}

func TestCourseKeyboardFoldsGallery(t *testing.T) {
	courses := []CourseRef{
		{ID: 1, Name: "Базовый курс"},
		{ID: 7, Name: GallerySentinel},
	}
	kb := CourseKeyboard(courses, BtnPastCourses)
	// gallery must not produce its own row
	require.Len(t, kb.Buttons, 2)

	menuRow := kb.Buttons[1]
	require.Len(t, menuRow, 2)
	assert.Equal(t, "ГАЛЕРЕЯ", menuRow[1].Action.Label)
	assert.Equal(t, int64(7), menuRow[1].Action.Payload["course_pk"])
	assert.Equal(t, BtnPastCourses, menuRow[1].Action.Payload["button"])
}

func TestKeyboardSerializesToVKShape(t *testing.T) {
	kb := MenuKeyboard(ColorPositive, false)
	data, err := json.Marshal(kb)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, false, decoded["inline"])
	rows, ok := decoded["buttons"].([]any)
	require.True(t, ok)
	require.Len(t, rows, 1)
	row := rows[0].([]any)
	btn := row[0].(map[string]any)
	action := btn["action"].(map[string]any)
	assert.Equal(t, "text", action["type"])
	assert.Equal(t, "☰ MENU", action["label"])
	assert.Equal(t, ColorPositive, btn["color"])
}
