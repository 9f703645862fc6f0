package http

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/auditrack/internal/common"
)

// Client facing messages.
const (
	msgMissingToken    = "Token ausente!"
	msgInvalidToken    = "Token inválido!"
	msgBadCredentials  = "Credenciais inválidas!"
	msgForbidden       = "Sem permissão!"
	msgStaleWindow     = "Só é possível alterar auditorias do dia atual!"
	msgUserExists      = "Usuário já existe!"
	msgUserNotFound    = "Usuário não encontrado!"
	msgAuditNotFound   = "Auditoria não encontrada!"
	msgAuditExists     = "Já existe uma auditoria para este setor hoje!"
	msgLastAdmin       = "Não é possível deletar o último administrador!"
	msgInvalidData     = "Dados inválidos!"
	msgTooManyAttempts = "Muitas tentativas, tente novamente mais tarde!"
	msgExportDisabled  = "Exportação indisponível!"
	msgInternal        = "Erro interno!"
	msgUserRegistered  = "Usuário registrado com sucesso!"
	msgUserDeleted     = "Usuário deletado com sucesso!"
	msgAuditRegistered = "Auditoria registrada com sucesso!"
	msgAuditUpdated    = "Auditoria atualizada com sucesso!"
	msgAuditDeleted    = "Auditoria deletada com sucesso!"
	msgAPIRunning      = "API está funcionando!"
)

type messageBody struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

// statusFor maps a service error to its status and body. notFound is the
// message used for common.ErrorNotFound, which depends on the resource.
// The second return is false for errors that are not part of the contract.
func statusFor(err error, notFound string) (int, messageBody, bool) {
	var conflict *common.AuditConflictError
	switch {
	case errors.As(err, &conflict):
		return http.StatusConflict, messageBody{Message: msgAuditExists, ID: conflict.ExistingID}, true
	case errors.Is(err, common.ErrAuditConflict):
		return http.StatusConflict, messageBody{Message: msgAuditExists}, true
	case errors.Is(err, common.ErrMissingCredential):
		return http.StatusUnauthorized, messageBody{Message: msgMissingToken}, true
	case errors.Is(err, common.ErrInvalidCredential):
		return http.StatusUnauthorized, messageBody{Message: msgInvalidToken}, true
	case errors.Is(err, common.ErrAuthentication):
		return http.StatusUnauthorized, messageBody{Message: msgBadCredentials}, true
	case errors.Is(err, common.ErrStaleWindow):
		return http.StatusForbidden, messageBody{Message: msgStaleWindow}, true
	case errors.Is(err, common.ErrForbidden):
		return http.StatusForbidden, messageBody{Message: msgForbidden}, true
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, messageBody{Message: notFound}, true
	case errors.Is(err, common.ErrUserAlreadyExists):
		return http.StatusBadRequest, messageBody{Message: msgUserExists}, true
	case errors.Is(err, common.ErrLastAdmin):
		return http.StatusBadRequest, messageBody{Message: msgLastAdmin}, true
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest, messageBody{Message: msgInvalidData}, true
	case errors.Is(err, common.ErrTooManyAttempts):
		return http.StatusTooManyRequests, messageBody{Message: msgTooManyAttempts}, true
	case errors.Is(err, common.ErrExportDisabled):
		return http.StatusServiceUnavailable, messageBody{Message: msgExportDisabled}, true
	default:
		return http.StatusInternalServerError, messageBody{Message: msgInternal}, false
	}
}
