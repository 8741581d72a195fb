package viewmodel

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/rs/zerolog"

	"github.com/99minutos/userdesk/internal/core/domain"
	"github.com/99minutos/userdesk/internal/pkg/validation"
)

// Mode is the form's current purpose.
type Mode string

const (
	ModeCreating Mode = "creating"
	ModeEditing  Mode = "editing"
)

// Field names one editable input of the form.
type Field string

const (
	FieldName      Field = "name"
	FieldEmail     Field = "email"
	FieldAddress   Field = "address"
	FieldBirthdate Field = "birthdate"
)

var (
	ErrUnknownField = errors.New("unknown form field")
	ErrSubmitting   = errors.New("a submission is already in progress")
)

// FormUsers is what the form needs from the user queries.
type FormUsers interface {
	LoadUser(ctx context.Context, id string) (domain.User, error)
	Create(ctx context.Context, input domain.UserInput) (domain.User, error)
	Update(ctx context.Context, id string, input domain.UserInput) (domain.User, error)
}

// FormState is a snapshot of the form.
type FormState struct {
	Mode       Mode
	TargetID   string
	Values     domain.UserInput
	Errors     map[string]string // field-level validation messages
	Submitting bool
	Err        error // last load or submit failure
}

// Form holds the create/edit form state.
type Form struct {
	users        FormUsers
	validator    *validation.Validator
	log          zerolog.Logger
	onFinishEdit func(id string)
	onChange     func(FormState)

	mu         sync.Mutex
	mode       Mode
	targetID   string
	values     domain.UserInput
	errors     map[string]string
	submitting bool
	err        error
}

// FormOption customises a Form.
type FormOption func(*Form)

// OnFinishEdit is called with the user id when editing ends, by cancel or by a
// successful update.
func OnFinishEdit(fn func(id string)) FormOption {
	return func(f *Form) { f.onFinishEdit = fn }
}

// OnFormChange is called with the new state after every change.
func OnFormChange(fn func(FormState)) FormOption {
	return func(f *Form) { f.onChange = fn }
}

func NewForm(users FormUsers, log zerolog.Logger, opts ...FormOption) *Form {
	f := &Form{
		users:     users,
		validator: validation.New(),
		log:       log,
		mode:      ModeCreating,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// State returns a copy of the current state.
func (f *Form) State() FormState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stateLocked()
}

func (f *Form) stateLocked() FormState {
	var errs map[string]string
	if len(f.errors) > 0 {
		errs = make(map[string]string, len(f.errors))
		for k, v := range f.errors {
			errs[k] = v
		}
	}
	return FormState{
		Mode:       f.mode,
		TargetID:   f.targetID,
		Values:     f.values,
		Errors:     errs,
		Submitting: f.submitting,
		Err:        f.err,
	}
}

// unlockAndEmit releases the lock and publishes the state it left behind.
func (f *Form) unlockAndEmit() {
	state := f.stateLocked()
	f.mu.Unlock()
	if f.onChange != nil {
		f.onChange(state)
	}
}

// Set updates one field and clears its validation message.
func (f *Form) Set(field Field, value string) error {
	f.mu.Lock()
	switch field {
	case FieldName:
		f.values.Name = value
	case FieldEmail:
		f.values.Email = value
	case FieldAddress:
		f.values.Address = value
	case FieldBirthdate:
		f.values.Birthdate = value
	default:
		f.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	delete(f.errors, string(field))
	f.unlockAndEmit()
	return nil
}

// Edit switches to editing id and fills the fields from the cached user,
// fetching it when it is not cached.
func (f *Form) Edit(ctx context.Context, id string) error {
	f.mu.Lock()
	f.mode = ModeEditing
	f.targetID = id
	f.values = domain.UserInput{}
	f.errors = nil
	f.err = nil
	f.unlockAndEmit()

	u, err := f.users.LoadUser(ctx, id)

	f.mu.Lock()
	if f.mode != ModeEditing || f.targetID != id {
		// Cancelled or retargeted while loading.
		f.mu.Unlock()
		return nil
	}
	if err != nil {
		f.err = err
		f.unlockAndEmit()
		f.log.Warn().Err(err).Str("user_id", id).Msg("failed to load user for editing")
		return err
	}
	f.values = u.Input()
	f.unlockAndEmit()
	return nil
}

// Cancel leaves editing mode and clears the fields.
func (f *Form) Cancel() {
	f.mu.Lock()
	id := f.targetID
	wasEditing := f.mode == ModeEditing
	f.reset()
	f.unlockAndEmit()

	if wasEditing && f.onFinishEdit != nil {
		f.onFinishEdit(id)
	}
}

func (f *Form) reset() {
	f.mode = ModeCreating
	f.targetID = ""
	f.values = domain.UserInput{}
	f.errors = nil
	f.err = nil
}

// Submit validates the fields and creates or updates the user. Invalid input
// is reported as a *domain.ValidationError without calling the API.
func (f *Form) Submit(ctx context.Context) error {
	f.mu.Lock()
	if f.submitting {
		f.mu.Unlock()
		return ErrSubmitting
	}
	mode, id, values := f.mode, f.targetID, f.values

	if err := f.validator.Validate(values); err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			f.errors = maps.Clone(ve.Fields)
		}
		f.unlockAndEmit()
		return err
	}

	f.submitting = true
	f.errors = nil
	f.err = nil
	f.unlockAndEmit()

	var err error
	if mode == ModeEditing {
		_, err = f.users.Update(ctx, id, values)
	} else {
		_, err = f.users.Create(ctx, values)
	}

	f.mu.Lock()
	f.submitting = false
	if err != nil {
		f.err = err
		f.unlockAndEmit()
		return err
	}

	// The form may have moved on while the request ran; only clear what
	// still belongs to this submission.
	finished := mode == ModeEditing && f.mode == ModeEditing && f.targetID == id
	switch {
	case finished:
		f.reset()
	case mode == ModeCreating && f.mode == ModeCreating:
		f.values = domain.UserInput{}
	}
	f.unlockAndEmit()

	if finished && f.onFinishEdit != nil {
		f.onFinishEdit(id)
	}
	return nil
}
