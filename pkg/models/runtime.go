package models

// RuntimeLoadRequest запрос на загрузку весов в процесс модельного рантайма
type RuntimeLoadRequest struct {
	Family          string `json:"family"`                     // Семейство модели (sam2/zim)
	Checkpoint      string `json:"checkpoint"`                 // Путь к весам (файл или директория)
	ModelDefinition string `json:"model_definition,omitempty"` // Конфигурация архитектуры (только SAM2)
	Device          string `json:"device"`                     // Устройство (cpu, cuda, cuda:N, mps)
}

// RuntimeLoadResponse ответ рантайма на загрузку модели
type RuntimeLoadResponse struct {
	Status  string `json:"status"`  // Статус выполнения
	Message string `json:"message"` // Сообщение
	Handle  string `json:"handle"`  // Идентификатор загруженной модели в рантайме
	Device  string `json:"device"`  // Фактическое устройство
}

// RuntimePredictRequest запрос на предсказание маски по точкам
type RuntimePredictRequest struct {
	Handle          string             `json:"handle"`           // Идентификатор модели
	Image           string             `json:"image"`            // RGB изображение в PNG, base64
	Width           int                `json:"width"`            // Ширина изображения
	Height          int                `json:"height"`           // Высота изображения
	Points          [][2]float64       `json:"point_coords"`     // Координаты точек (x, y)
	Labels          []int              `json:"point_labels"`     // Метки точек (1 - передний план)
	MultimaskOutput bool               `json:"multimask_output"` // Запрашивать несколько масок
	Parameters      map[string]float64 `json:"parameters"`       // Параметры семейства
}

// RuntimePredictResponse ответ рантайма с масками
type RuntimePredictResponse struct {
	Status  string    `json:"status"`  // Статус выполнения
	Message string    `json:"message"` // Сообщение
	Width   int       `json:"width"`   // Ширина масок
	Height  int       `json:"height"`  // Высота масок
	Masks   []string  `json:"masks"`   // Каналы масок, PNG в оттенках серого, base64
	Scores  []float64 `json:"scores"`  // Оценки качества масок
}

// HealthResponse представляет ответ проверки здоровья сервиса
type HealthResponse struct {
	Status       string   `json:"status"`            // Статус сервиса (healthy/unhealthy)
	LoadedModels int      `json:"loaded_models"`     // Количество загруженных моделей
	Devices      []string `json:"devices,omitempty"` // Доступные устройства
	Version      string   `json:"version"`           // Версия сервиса
}
