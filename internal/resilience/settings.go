package resilience

import "time"

// Class класс операции с собственными параметрами политики.
type Class string

const (
	ClassOutboundAPI Class = "outbound_api"
	ClassStorage     Class = "storage"
)

// RetrySettings параметры повторов. MaxAttempts считает все попытки, включая первую.
type RetrySettings struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// ClassSettings настройки одного класса операций. Breaker == nil отключает предохранитель.
type ClassSettings struct {
	Retry   RetrySettings
	Breaker *BreakerSettings
	Timeout time.Duration
}

// Settings настройки обоих классов.
type Settings struct {
	OutboundAPI ClassSettings
	Storage     ClassSettings
}

// DefaultSettings значения по умолчанию: короткий таймаут и предохранитель для
// внешнего API, более длинный таймаут и мягкие паузы для хранилища.
func DefaultSettings() Settings {
	return Settings{
		OutboundAPI: ClassSettings{
			Retry: RetrySettings{
				MaxAttempts:  3,
				InitialDelay: 100 * time.Millisecond,
				MaxDelay:     5 * time.Second,
			},
			Breaker: &BreakerSettings{
				FailureRatio:      0.5,
				SamplingDuration:  30 * time.Second,
				MinimumThroughput: 10,
				BreakDuration:     30 * time.Second,
			},
			Timeout: 10 * time.Second,
		},
		Storage: ClassSettings{
			Retry: RetrySettings{
				MaxAttempts:  3,
				InitialDelay: 200 * time.Millisecond,
				MaxDelay:     5 * time.Second,
			},
			Timeout: 30 * time.Second,
		},
	}
}

func (s RetrySettings) withDefaults() RetrySettings {
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = 3
	}
	if s.InitialDelay <= 0 {
		s.InitialDelay = 100 * time.Millisecond
	}
	if s.MaxDelay < s.InitialDelay {
		s.MaxDelay = s.InitialDelay
	}
	return s
}
