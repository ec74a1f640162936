// Package apperrors задаёт типизированные ошибки ядра (§7), чтобы вызывающий
// код мог отличить протокольную ошибку от ошибки ёмкости, не разбирая строки.
package apperrors

import "fmt"

// Kind классифицирует ошибку согласно таксономии §7.
type Kind int

const (
	// KindProtocol: повреждённый заголовок, оверсайз-сообщение, неизвестный тип.
	// Действие вызывающей стороны: отключить клиента, не передавать в симуляцию.
	KindProtocol Kind = iota
	// KindCapacity: клиентская карта заполнена, выход за пределы карты,
	// переполнение истории ввода. Действие: отклонить операцию, продолжать работу.
	KindCapacity
	// KindDisconnect: короткая запись, нулевое чтение или таймаут.
	KindDisconnect
	// KindSerialization: десериализация компонента не удалась.
	KindSerialization
)

func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "protocol"
	case KindCapacity:
		return "capacity"
	case KindDisconnect:
		return "disconnect"
	case KindSerialization:
		return "serialization"
	default:
		return "unknown"
	}
}

// Error оборачивает причину с классификацией и необязательным контекстом.
type Error struct {
	Kind    Kind
	Op      string // операция, в которой произошла ошибка
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Protocol строит протокольную ошибку (фатальна для соединения-отправителя).
func Protocol(op string, err error) error {
	return &Error{Kind: KindProtocol, Op: op, Err: err}
}

// Capacity строит ошибку переполнения ёмкости (не фатальна — операция
// отклоняется, сервис продолжает работать).
func Capacity(op string, err error) error {
	return &Error{Kind: KindCapacity, Op: op, Err: err}
}

// Disconnect строит ошибку, означающую, что пир разорвал соединение.
func Disconnect(op string, err error) error {
	return &Error{Kind: KindDisconnect, Op: op, Err: err}
}

// Serialization строит ошибку десериализации одного компонента; вызывающий
// код должен отбросить только это обновление, а не весь батч (§7).
func Serialization(op string, err error) error {
	return &Error{Kind: KindSerialization, Op: op, Err: err}
}

// Is позволяет использовать errors.Is(err, apperrors.KindProtocol) — через
// сравнение Kind, а не значения — поэтому экспортируем вспомогательную функцию.
func Is(err error, kind Kind) bool {
	ae, ok := err.(*Error)
	if !ok {
		return false
	}
	return ae.Kind == kind
}
