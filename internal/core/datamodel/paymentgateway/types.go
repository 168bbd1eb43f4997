package paymentgateway

// Wire types for the gateway's v3 REST API. Amounts are plain JSON numbers in BRL.

const (
	BillingTypePix        = "PIX"
	BillingTypeCreditCard = "CREDIT_CARD"

	ChargeTypeDetached    = "DETACHED"
	ChargeTypeInstallment = "INSTALLMENT"
)

type CustomerRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	CpfCnpj     string `json:"cpfCnpj"`
	Phone       string `json:"phone,omitempty"`
	MobilePhone string `json:"mobilePhone,omitempty"`
}

type Customer struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	CpfCnpj     string `json:"cpfCnpj"`
	Phone       string `json:"phone,omitempty"`
	MobilePhone string `json:"mobilePhone,omitempty"`
}

type CustomerList struct {
	HasMore    bool       `json:"hasMore"`
	TotalCount int        `json:"totalCount"`
	Data       []Customer `json:"data"`
}

type CreditCard struct {
	HolderName  string `json:"holderName"`
	Number      string `json:"number"`
	ExpiryMonth string `json:"expiryMonth"`
	ExpiryYear  string `json:"expiryYear"`
	Ccv         string `json:"ccv"`
}

type CreditCardHolderInfo struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	CpfCnpj       string `json:"cpfCnpj"`
	PostalCode    string `json:"postalCode"`
	AddressNumber string `json:"addressNumber"`
	Phone         string `json:"phone"`
}

// ChargeRequest sets either Value or the installment trio, never both.
type ChargeRequest struct {
	Customer             string                `json:"customer"`
	BillingType          string                `json:"billingType"`
	Value                float64               `json:"value,omitempty"`
	DueDate              string                `json:"dueDate"`
	Description          string                `json:"description,omitempty"`
	ExternalReference    string                `json:"externalReference,omitempty"`
	InstallmentCount     int                   `json:"installmentCount,omitempty"`
	InstallmentValue     float64               `json:"installmentValue,omitempty"`
	TotalValue           float64               `json:"totalValue,omitempty"`
	CreditCard           *CreditCard           `json:"creditCard,omitempty"`
	CreditCardHolderInfo *CreditCardHolderInfo `json:"creditCardHolderInfo,omitempty"`
	RemoteIP             string                `json:"remoteIp,omitempty"`
}

type PixQRCode struct {
	EncodedImage   string `json:"encodedImage"`
	Payload        string `json:"payload"`
	ExpirationDate string `json:"expirationDate"`
}

type Charge struct {
	ID                string     `json:"id"`
	Customer          string     `json:"customer"`
	BillingType       string     `json:"billingType"`
	Value             float64    `json:"value"`
	NetValue          float64    `json:"netValue,omitempty"`
	Status            string     `json:"status"`
	DueDate           string     `json:"dueDate,omitempty"`
	Description       string     `json:"description,omitempty"`
	ExternalReference string     `json:"externalReference,omitempty"`
	InvoiceURL        string     `json:"invoiceUrl,omitempty"`
	InstallmentCount  int        `json:"installmentCount,omitempty"`
	ConfirmedDate     string     `json:"confirmedDate,omitempty"`
	PaymentDate       string     `json:"paymentDate,omitempty"`
	ClientPaymentDate string     `json:"clientPaymentDate,omitempty"`
	CreditDate        string     `json:"creditDate,omitempty"`
	Pix               *PixQRCode `json:"pix,omitempty"`
}

type CheckoutItem struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Quantity    int     `json:"quantity"`
	Value       float64 `json:"value"`
}

type CheckoutCallback struct {
	SuccessURL string `json:"successUrl"`
	CancelURL  string `json:"cancelUrl"`
	ExpiredURL string `json:"expiredUrl"`
}

type CheckoutRequest struct {
	BillingTypes        []string         `json:"billingTypes"`
	ChargeTypes         []string         `json:"chargeTypes"`
	MinutesToExpire     int              `json:"minutesToExpire"`
	MaxInstallmentCount int              `json:"maxInstallmentCount"`
	Callback            CheckoutCallback `json:"callback"`
	Items               []CheckoutItem   `json:"items"`
}

type Checkout struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type APIError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type ErrorResponse struct {
	Errors []APIError `json:"errors"`
}

// WebhookNotification is the body the gateway POSTs for every charge event.
type WebhookNotification struct {
	ID          string  `json:"id"`
	Event       string  `json:"event"`
	DateCreated string  `json:"dateCreated,omitempty"`
	Payment     *Charge `json:"payment"`
}
