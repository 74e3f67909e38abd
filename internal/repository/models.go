package repository

import (
	"encoding/json"
	"time"

	"github.com/kursadbilgin/federation-engine/internal/domain"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// AthleteModel is the persistence model for the athletes table.
type AthleteModel struct {
	ID                    string                      `gorm:"type:uuid;primaryKey"`
	UserID                string                      `gorm:"type:varchar(64);not null;uniqueIndex"`
	Name                  string                      `gorm:"type:varchar(255);not null"`
	Document              string                      `gorm:"type:varchar(32);not null;default:''"`
	Email                 string                      `gorm:"type:varchar(255);not null;default:''"`
	Phone                 *string                     `gorm:"type:varchar(32)"`
	Active                bool                        `gorm:"not null;default:false"`
	Category              string                      `gorm:"type:varchar(64);not null;default:''"`
	Modalities            datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	ClubID                *string                     `gorm:"type:uuid"`
	RegistrationYear      *int                        `gorm:"type:int"`
	IsRenewal             bool                        `gorm:"not null;default:false"`
	FirstRegistrationDate *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (AthleteModel) TableName() string {
	return "athletes"
}

// GatewayConfigModel is the persistence model for payment_gateway_configs.
type GatewayConfigModel struct {
	ID          string                 `gorm:"type:uuid;primaryKey"`
	Provider    domain.GatewayProvider `gorm:"type:varchar(20);not null"`
	Name        string                 `gorm:"type:varchar(100);not null"`
	Active      bool                   `gorm:"not null;default:false;index"`
	Sandbox     bool                   `gorm:"not null;default:true"`
	Credentials datatypes.JSON         `gorm:"type:jsonb"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (GatewayConfigModel) TableName() string {
	return "payment_gateway_configs"
}

// PaymentTransactionModel is the persistence model for payment_transactions.
type PaymentTransactionModel struct {
	ID            string                 `gorm:"type:uuid;primaryKey"`
	AthleteID     string                 `gorm:"type:uuid;not null;index"`
	UserID        string                 `gorm:"type:varchar(64);not null"`
	Provider      domain.GatewayProvider `gorm:"type:varchar(20);not null;uniqueIndex:idx_payment_tx_provider_external,priority:1"`
	Amount        decimal.Decimal        `gorm:"type:numeric(12,2);not null"`
	Currency      string                 `gorm:"type:varchar(3);not null;default:'BRL'"`
	Status        domain.PaymentStatus   `gorm:"type:varchar(20);not null"`
	PaymentMethod domain.PaymentMethod   `gorm:"type:varchar(20);not null"`
	ExternalID    *string                `gorm:"type:varchar(128);uniqueIndex:idx_payment_tx_provider_external,priority:2"`
	Protocol      string                 `gorm:"type:varchar(32);not null;index"`
	Description   string                 `gorm:"type:varchar(255);not null;default:''"`
	PaymentURL    *string                `gorm:"type:text"`
	Metadata      datatypes.JSON         `gorm:"type:jsonb"`
	PaidAt        *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (PaymentTransactionModel) TableName() string {
	return "payment_transactions"
}

// ProtocolModel is the persistence model for protocols. Rows are insert-only.
type ProtocolModel struct {
	ID            string  `gorm:"type:uuid;primaryKey"`
	Number        string  `gorm:"type:varchar(32);not null;uniqueIndex"`
	TransactionID *string `gorm:"type:uuid"`
	EntityType    string  `gorm:"type:varchar(32);not null;index:idx_protocols_entity,priority:1"`
	EntityID      string  `gorm:"type:varchar(64);not null;index:idx_protocols_entity,priority:2"`
	Kind          string  `gorm:"type:varchar(32);not null"`
	CreatedAt     time.Time
}

func (ProtocolModel) TableName() string {
	return "protocols"
}

// NotificationModel is the persistence model for the notifications table.
type NotificationModel struct {
	ID                string                  `gorm:"type:uuid;primaryKey"`
	CorrelationID     string                  `gorm:"type:varchar(36);not null"`
	Type              domain.NotificationType `gorm:"type:varchar(32);not null"`
	Channel           domain.Channel          `gorm:"type:varchar(10);not null"`
	Priority          domain.Priority         `gorm:"type:varchar(10);not null"`
	Recipient         string                  `gorm:"type:varchar(255);not null"`
	Subject           string                  `gorm:"type:varchar(255);not null;default:''"`
	Content           string                  `gorm:"type:text;not null"`
	Metadata          datatypes.JSON          `gorm:"type:jsonb"`
	Status            domain.Status           `gorm:"type:varchar(20);not null"`
	ProviderMessageID *string                 `gorm:"type:varchar(255)"`
	AttemptCount      int                     `gorm:"not null;default:0"`
	MaxRetries        int                     `gorm:"not null;default:3"`
	NextRetryAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (NotificationModel) TableName() string {
	return "notifications"
}

// NotificationAttemptModel is the persistence model for notification_attempts.
type NotificationAttemptModel struct {
	ID                string         `gorm:"type:uuid;primaryKey"`
	NotificationID    string         `gorm:"type:uuid;not null"`
	AttemptNumber     int            `gorm:"not null"`
	Channel           domain.Channel `gorm:"type:varchar(10);not null"`
	Success           bool           `gorm:"not null;default:false"`
	StatusCode        *int           `gorm:"type:int"`
	ProviderMessageID *string        `gorm:"type:varchar(255)"`
	ResponseBody      *string        `gorm:"type:text"`
	Error             *string        `gorm:"type:text"`
	CreatedAt         time.Time
}

func (NotificationAttemptModel) TableName() string {
	return "notification_attempts"
}

// NotificationLogModel is the persistence model for notification_logs.
type NotificationLogModel struct {
	ID             string          `gorm:"type:uuid;primaryKey"`
	NotificationID string          `gorm:"type:uuid;not null;index"`
	Event          domain.LogEvent `gorm:"type:varchar(20);not null"`
	Status         domain.Status   `gorm:"type:varchar(20);not null"`
	Metadata       datatypes.JSON  `gorm:"type:jsonb"`
	CreatedAt      time.Time
}

func (NotificationLogModel) TableName() string {
	return "notification_logs"
}

func athleteModelFromDomain(a *domain.Athlete) *AthleteModel {
	if a == nil {
		return nil
	}

	return &AthleteModel{
		ID:                    a.ID,
		UserID:                a.UserID,
		Name:                  a.Name,
		Document:              a.Document,
		Email:                 a.Email,
		Phone:                 a.Phone,
		Active:                a.Active,
		Category:              a.Category,
		Modalities:            datatypes.NewJSONSlice(a.Modalities),
		ClubID:                a.ClubID,
		RegistrationYear:      a.RegistrationYear,
		IsRenewal:             a.IsRenewal,
		FirstRegistrationDate: a.FirstRegistrationDate,
		CreatedAt:             a.CreatedAt,
		UpdatedAt:             a.UpdatedAt,
	}
}

func athleteModelToDomain(m *AthleteModel) *domain.Athlete {
	if m == nil {
		return nil
	}

	return &domain.Athlete{
		ID:                    m.ID,
		UserID:                m.UserID,
		Name:                  m.Name,
		Document:              m.Document,
		Email:                 m.Email,
		Phone:                 m.Phone,
		Active:                m.Active,
		Category:              m.Category,
		Modalities:            []string(m.Modalities),
		ClubID:                m.ClubID,
		RegistrationYear:      m.RegistrationYear,
		IsRenewal:             m.IsRenewal,
		FirstRegistrationDate: m.FirstRegistrationDate,
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
	}
}

func gatewayConfigModelFromDomain(c *domain.GatewayConfig) *GatewayConfigModel {
	if c == nil {
		return nil
	}

	var credentials datatypes.JSON
	if c.Credentials != nil {
		if raw, err := json.Marshal(c.Credentials); err == nil {
			credentials = raw
		}
	}

	return &GatewayConfigModel{
		ID:          c.ID,
		Provider:    c.Provider,
		Name:        c.Name,
		Active:      c.Active,
		Sandbox:     c.Sandbox,
		Credentials: credentials,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func gatewayConfigModelToDomain(m *GatewayConfigModel) *domain.GatewayConfig {
	if m == nil {
		return nil
	}

	var credentials *domain.GatewayCredentials
	if len(m.Credentials) > 0 && string(m.Credentials) != "null" {
		var parsed domain.GatewayCredentials
		if err := json.Unmarshal(m.Credentials, &parsed); err == nil {
			credentials = &parsed
		}
	}

	return &domain.GatewayConfig{
		ID:          m.ID,
		Provider:    m.Provider,
		Name:        m.Name,
		Active:      m.Active,
		Sandbox:     m.Sandbox,
		Credentials: credentials,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func transactionModelFromDomain(t *domain.PaymentTransaction) *PaymentTransactionModel {
	if t == nil {
		return nil
	}

	return &PaymentTransactionModel{
		ID:            t.ID,
		AthleteID:     t.AthleteID,
		UserID:        t.UserID,
		Provider:      t.Provider,
		Amount:        t.Amount,
		Currency:      t.Currency,
		Status:        t.Status,
		PaymentMethod: t.PaymentMethod,
		ExternalID:    t.ExternalID,
		Protocol:      t.Protocol,
		Description:   t.Description,
		PaymentURL:    t.PaymentURL,
		Metadata:      jsonFromMap(t.Metadata),
		PaidAt:        t.PaidAt,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

func transactionModelToDomain(m *PaymentTransactionModel) *domain.PaymentTransaction {
	if m == nil {
		return nil
	}

	return &domain.PaymentTransaction{
		ID:            m.ID,
		AthleteID:     m.AthleteID,
		UserID:        m.UserID,
		Provider:      m.Provider,
		Amount:        m.Amount,
		Currency:      m.Currency,
		Status:        m.Status,
		PaymentMethod: m.PaymentMethod,
		ExternalID:    m.ExternalID,
		Protocol:      m.Protocol,
		Description:   m.Description,
		PaymentURL:    m.PaymentURL,
		Metadata:      mapFromJSON(m.Metadata),
		PaidAt:        m.PaidAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func protocolModelFromDomain(p *domain.Protocol) *ProtocolModel {
	if p == nil {
		return nil
	}

	return &ProtocolModel{
		ID:            p.ID,
		Number:        p.Number,
		TransactionID: p.TransactionID,
		EntityType:    p.EntityType,
		EntityID:      p.EntityID,
		Kind:          p.Kind,
		CreatedAt:     p.CreatedAt,
	}
}

func protocolModelToDomain(m *ProtocolModel) *domain.Protocol {
	if m == nil {
		return nil
	}

	return &domain.Protocol{
		ID:            m.ID,
		Number:        m.Number,
		TransactionID: m.TransactionID,
		EntityType:    m.EntityType,
		EntityID:      m.EntityID,
		Kind:          m.Kind,
		CreatedAt:     m.CreatedAt,
	}
}

func notificationModelFromDomain(n *domain.Notification) *NotificationModel {
	if n == nil {
		return nil
	}

	return &NotificationModel{
		ID:                n.ID,
		CorrelationID:     n.CorrelationID,
		Type:              n.Type,
		Channel:           n.Channel,
		Priority:          n.Priority,
		Recipient:         n.Recipient,
		Subject:           n.Subject,
		Content:           n.Content,
		Metadata:          jsonFromMap(n.Metadata),
		Status:            n.Status,
		ProviderMessageID: n.ProviderMessageID,
		AttemptCount:      n.AttemptCount,
		MaxRetries:        n.MaxRetries,
		NextRetryAt:       n.NextRetryAt,
		CreatedAt:         n.CreatedAt,
		UpdatedAt:         n.UpdatedAt,
	}
}

func notificationModelToDomain(m *NotificationModel) *domain.Notification {
	if m == nil {
		return nil
	}

	return &domain.Notification{
		ID:                m.ID,
		CorrelationID:     m.CorrelationID,
		Type:              m.Type,
		Channel:           m.Channel,
		Priority:          m.Priority,
		Recipient:         m.Recipient,
		Subject:           m.Subject,
		Content:           m.Content,
		Metadata:          mapFromJSON(m.Metadata),
		Status:            m.Status,
		ProviderMessageID: m.ProviderMessageID,
		AttemptCount:      m.AttemptCount,
		MaxRetries:        m.MaxRetries,
		NextRetryAt:       m.NextRetryAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func attemptModelFromDomain(a *domain.NotificationAttempt) *NotificationAttemptModel {
	if a == nil {
		return nil
	}

	return &NotificationAttemptModel{
		ID:                a.ID,
		NotificationID:    a.NotificationID,
		AttemptNumber:     a.AttemptNumber,
		Channel:           a.Channel,
		Success:           a.Success,
		StatusCode:        a.StatusCode,
		ProviderMessageID: a.ProviderMessageID,
		ResponseBody:      a.ResponseBody,
		Error:             a.Error,
		CreatedAt:         a.CreatedAt,
	}
}

func attemptModelToDomain(m *NotificationAttemptModel) *domain.NotificationAttempt {
	if m == nil {
		return nil
	}

	return &domain.NotificationAttempt{
		ID:                m.ID,
		NotificationID:    m.NotificationID,
		AttemptNumber:     m.AttemptNumber,
		Channel:           m.Channel,
		Success:           m.Success,
		StatusCode:        m.StatusCode,
		ProviderMessageID: m.ProviderMessageID,
		ResponseBody:      m.ResponseBody,
		Error:             m.Error,
		CreatedAt:         m.CreatedAt,
	}
}

func logModelFromDomain(l *domain.NotificationLog) *NotificationLogModel {
	if l == nil {
		return nil
	}

	return &NotificationLogModel{
		ID:             l.ID,
		NotificationID: l.NotificationID,
		Event:          l.Event,
		Status:         l.Status,
		Metadata:       jsonFromMap(l.Metadata),
		CreatedAt:      l.CreatedAt,
	}
}

func logModelToDomain(m *NotificationLogModel) *domain.NotificationLog {
	if m == nil {
		return nil
	}

	return &domain.NotificationLog{
		ID:             m.ID,
		NotificationID: m.NotificationID,
		Event:          m.Event,
		Status:         m.Status,
		Metadata:       mapFromJSON(m.Metadata),
		CreatedAt:      m.CreatedAt,
	}
}

func jsonFromMap(m map[string]any) datatypes.JSON {
	if len(m) == 0 {
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

func mapFromJSON(raw datatypes.JSON) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
