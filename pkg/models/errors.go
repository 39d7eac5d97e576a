package models

import (
	"errors"
	"fmt"
)

// Таксономия ошибок ядра. Конкретные ошибки оборачивают эти значения через %w,
// классификация на границе тика делается через errors.Is.
var (
	// ErrValidation несовпадение идентичности данных или некорректный ввод; фатально только для одной операции
	ErrValidation = errors.New("ошибка валидации")

	// ErrComputation вырожденные входные данные индикаторов; тик пропускается
	ErrComputation = errors.New("ошибка вычисления")

	// ErrInsufficientData окно свечей короче требуемого; частный случай ErrComputation
	ErrInsufficientData = fmt.Errorf("%w: недостаточно данных", ErrComputation)

	// ErrDelivery ошибка доставки уведомления или события
	ErrDelivery = errors.New("ошибка доставки")

	// ErrRepository ошибка хранилища; учитывается в бюджете ошибок пары
	ErrRepository = errors.New("ошибка хранилища")

	// ErrInvalidTransition недопустимый переход статуса сигнала
	ErrInvalidTransition = errors.New("недопустимый переход статуса")
)
